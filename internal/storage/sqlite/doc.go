// Package sqlite persists background model snapshots in a SQLite database.
//
// The schema is embedded and migrated with golang-migrate when the store is
// opened. Each row holds the gzip-compressed MODEL_PARAS_INFO text of one
// model together with enough metadata to list and select snapshots without
// decompressing them.
package sqlite
