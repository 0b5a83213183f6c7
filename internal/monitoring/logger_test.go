package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	// nil installs a no-op that must not reach the previous logger
	called = false
	SetLogger(nil)
	Logf("test")
	assert.False(t, called)
}

func TestLogf_Default(t *testing.T) {
	assert.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}

func TestDiagf(t *testing.T) {
	original := Logf
	defer func() {
		Logf = original
		EnableDiagnostics(false)
	}()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	EnableDiagnostics(false)
	Diagf("[Model] frame=%d", 1)
	assert.Empty(t, lines)
	assert.False(t, DiagnosticsEnabled())

	EnableDiagnostics(true)
	Diagf("[Model] frame=%d", 2)
	assert.Equal(t, []string{"[Model] frame=2"}, lines)
	assert.True(t, DiagnosticsEnabled())
}
