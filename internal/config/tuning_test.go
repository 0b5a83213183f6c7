package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetMaxModes() != 5 {
		t.Errorf("GetMaxModes() = %d, want 5", cfg.GetMaxModes())
	}
	if cfg.GetBackgroundModelPercent() != 0.6 {
		t.Errorf("GetBackgroundModelPercent() = %f, want 0.6", cfg.GetBackgroundModelPercent())
	}
	if cfg.GetShadowRate() != 0.6 || cfg.GetHighlightRate() != 1.2 {
		t.Errorf("shadow/highlight = %f/%f, want 0.6/1.2", cfg.GetShadowRate(), cfg.GetHighlightRate())
	}
	if cfg.GetPersistencePeriod() != 2*time.Second {
		t.Errorf("GetPersistencePeriod() = %v, want 2s", cfg.GetPersistencePeriod())
	}
	if cfg.GetLBPSource() != "gray" {
		t.Errorf("GetLBPSource() = %q, want gray", cfg.GetLBPSource())
	}
	if got := cfg.GetLBPNeighbors(); len(got) != 1 || got[0] != 6 {
		t.Errorf("GetLBPNeighbors() = %v, want [6]", got)
	}
	if !cfg.GetLayerPruning() {
		t.Error("GetLayerPruning() = false, want true")
	}
	if cfg.GetEdgeAwareSmoothing() {
		t.Error("GetEdgeAwareSmoothing() = true, want false")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults file must validate: %v", err)
	}

	// The file and the built-in getters must agree.
	empty := EmptyTuningConfig()
	if cfg.GetMaxModes() != empty.GetMaxModes() {
		t.Errorf("max_modes file=%d builtin=%d", cfg.GetMaxModes(), empty.GetMaxModes())
	}
	if cfg.GetGenerateThreshold() != empty.GetGenerateThreshold() {
		t.Errorf("generate_threshold file=%f builtin=%f", cfg.GetGenerateThreshold(), empty.GetGenerateThreshold())
	}
	if cfg.GetFrameDuration() != empty.GetFrameDuration() {
		t.Errorf("frame_duration file=%f builtin=%f", cfg.GetFrameDuration(), empty.GetFrameDuration())
	}
	if cfg.GetSnapshotInterval() != empty.GetSnapshotInterval() {
		t.Errorf("snapshot_interval file=%v builtin=%v", cfg.GetSnapshotInterval(), empty.GetSnapshotInterval())
	}
	if cfg.GetSnapshotRetention() != 24*time.Hour || empty.GetSnapshotRetention() != 24*time.Hour {
		t.Errorf("snapshot_retention file=%v builtin=%v, want 24h", cfg.GetSnapshotRetention(), empty.GetSnapshotRetention())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "max_modes": 7,
  "update_threshold": 0.1,
  "generate_threshold": 0.5,
  "persistence_period": "500ms",
  "lbp_source": "color_gradient",
  "lbp_radii": [1, 2],
  "lbp_neighbors": [4, 8]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetMaxModes() != 7 {
		t.Errorf("GetMaxModes() = %d, want 7", cfg.GetMaxModes())
	}
	if cfg.GetUpdateThreshold() != 0.1 {
		t.Errorf("GetUpdateThreshold() = %f, want 0.1", cfg.GetUpdateThreshold())
	}
	if cfg.GetPersistencePeriod() != 500*time.Millisecond {
		t.Errorf("GetPersistencePeriod() = %v, want 500ms", cfg.GetPersistencePeriod())
	}
	if cfg.GetLBPSource() != "color_gradient" {
		t.Errorf("GetLBPSource() = %q", cfg.GetLBPSource())
	}
	if got := cfg.GetLBPRadii(); len(got) != 2 || got[1] != 2 {
		t.Errorf("GetLBPRadii() = %v", got)
	}
	// Unset fields keep their defaults.
	if cfg.GetShadowRate() != 0.6 {
		t.Errorf("GetShadowRate() = %f, want default 0.6", cfg.GetShadowRate())
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"wrong extension", write("cfg.yaml", `{}`)},
		{"missing file", filepath.Join(tmpDir, "missing.json")},
		{"bad json", write("bad.json", `{"max_modes":`)},
		{"max modes too large", write("modes.json", `{"max_modes": 11}`)},
		{"threshold order", write("thr.json", `{"update_threshold": 0.7, "generate_threshold": 0.3}`)},
		{"unit range", write("unit.json", `{"background_model_percent": 1.5}`)},
		{"bad duration", write("dur.json", `{"persistence_period": "soon"}`)},
		{"negative retention", write("ret.json", `{"snapshot_retention": "-1h"}`)},
		{"lbp mismatch", write("lbp.json", `{"lbp_radii": [1, 2], "lbp_neighbors": [4]}`)},
		{"frame duration", write("fd.json", `{"frame_duration": 0}`)},
		{"zero weights", write("w.json", `{"texture_weight": 0, "color_weight": 0}`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadTuningConfig(tc.path); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.json")
	data := make([]byte, 1024*1024+1)
	for i := range data {
		data[i] = ' '
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(p); err == nil {
		t.Error("expected error for oversized file")
	}
}
