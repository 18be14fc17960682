package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wicket-data/trajectory.report/internal/ball"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	// Getter methods answer with the documented defaults when unset.
	if cfg.GetFrameRate() != 30.0 {
		t.Errorf("GetFrameRate() = %f, want 30.0", cfg.GetFrameRate())
	}
	if cfg.GetMeasurementNoise() != 25.0 {
		t.Errorf("GetMeasurementNoise() = %f, want 25.0", cfg.GetMeasurementNoise())
	}
	if cfg.GetMaxConsecutiveMisses() != 15 {
		t.Errorf("GetMaxConsecutiveMisses() = %d, want 15", cfg.GetMaxConsecutiveMisses())
	}
	if cfg.GetPitchLengthM() != 20.12 {
		t.Errorf("GetPitchLengthM() = %f, want 20.12", cfg.GetPitchLengthM())
	}
	if cfg.GetDragModel() != "none" {
		t.Errorf("GetDragModel() = %q, want \"none\"", cfg.GetDragModel())
	}
	if cfg.GetRestitution() != 0.78 {
		t.Errorf("GetRestitution() = %f, want 0.78", cfg.GetRestitution())
	}
	if cfg.GetStumpHalfWidthM() != 0.1143 {
		t.Errorf("GetStumpHalfWidthM() = %f, want 0.1143", cfg.GetStumpHalfWidthM())
	}
	if cfg.GetMarginToleranceM() != 0.02 {
		t.Errorf("GetMarginToleranceM() = %f, want 0.02", cfg.GetMarginToleranceM())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("partial config keeps defaults", func(t *testing.T) {
		path := filepath.Join(tmpDir, "partial.json")
		content := `{"frame_rate": 50.0, "restitution": 0.6}`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write temp config: %v", err)
		}

		cfg, err := LoadTuningConfig(path)
		if err != nil {
			t.Fatalf("LoadTuningConfig: %v", err)
		}
		if cfg.GetFrameRate() != 50.0 {
			t.Errorf("GetFrameRate() = %f, want 50.0", cfg.GetFrameRate())
		}
		if cfg.GetRestitution() != 0.6 {
			t.Errorf("GetRestitution() = %f, want 0.6", cfg.GetRestitution())
		}
		// Untouched field keeps its default.
		if cfg.GetGravityMps2() != 9.81 {
			t.Errorf("GetGravityMps2() = %f, want 9.81", cfg.GetGravityMps2())
		}
	})

	t.Run("unrecognized key rejected", func(t *testing.T) {
		path := filepath.Join(tmpDir, "unknown.json")
		content := `{"frame_rate": 30.0, "restituton": 0.8}`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write temp config: %v", err)
		}

		_, err := LoadTuningConfig(path)
		var cfgErr *ball.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError for unknown key, got %v", err)
		}
	})

	t.Run("non-json extension rejected", func(t *testing.T) {
		_, err := LoadTuningConfig(filepath.Join(tmpDir, "tuning.yaml"))
		var cfgErr *ball.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadTuningConfig(filepath.Join(tmpDir, "nope.json"))
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*TuningConfig)
		wantErr bool
	}{
		{"valid empty", func(c *TuningConfig) {}, false},
		{"negative frame rate", func(c *TuningConfig) { v := -1.0; c.FrameRate = &v }, true},
		{"confidence above one", func(c *TuningConfig) { v := 1.5; c.MinConfidence = &v }, true},
		{"zero restitution", func(c *TuningConfig) { v := 0.0; c.Restitution = &v }, true},
		{"restitution above one", func(c *TuningConfig) { v := 1.2; c.Restitution = &v }, true},
		{"unknown drag model", func(c *TuningConfig) { v := "quadratic"; c.DragModel = &v }, true},
		{"fit window too small", func(c *TuningConfig) { v := 1; c.FitWindowFrames = &v }, true},
		{"negative margin", func(c *TuningConfig) { v := -0.01; c.MarginToleranceM = &v }, true},
		{"zero pitch length", func(c *TuningConfig) { v := 0.0; c.PitchLengthM = &v }, true},
		{"linear drag model ok", func(c *TuningConfig) { v := "linear"; c.DragModel = &v }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := EmptyTuningConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
			if tc.wantErr {
				var cfgErr *ball.ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected *ball.ConfigurationError, got %T", err)
				}
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.FrameRate == nil || *cfg.FrameRate != 30.0 {
		t.Errorf("defaults file frame_rate = %v, want 30.0", cfg.FrameRate)
	}
	if cfg.StumpHeightM == nil || *cfg.StumpHeightM != 0.711 {
		t.Errorf("defaults file stump_height_m = %v, want 0.711", cfg.StumpHeightM)
	}
}
