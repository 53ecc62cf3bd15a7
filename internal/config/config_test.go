package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/lanespray/internal/frame"
	"github.com/banshee-data/lanespray/internal/lanes"
	"github.com/banshee-data/lanespray/internal/pipeline"
	"github.com/banshee-data/lanespray/internal/vegetation"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}

	want := Spray{
		Strategy:   vegetation.StrategyHybrid,
		Threshold:  16,
		Hybrid:     vegetation.DefaultHybridParams(),
		BottomFrac: 0.3,
		MinRatio:   0.008,
		FireMs:     60,
		HoldoffMs:  200,
		Hysteresis: 0.5,
		LaneCount:  4,
	}
	if diff := cmp.Diff(cfg.Resolve(), want); diff != "" {
		t.Errorf("Default().Resolve() mismatch (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(Empty().Resolve(), want); diff != "" {
		t.Errorf("Empty().Resolve() must resolve to the same defaults (-got +want):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "spray.toml", `
[spray]
strategy = "threshold"
threshold = 40
fire_ms = 80
lane_count = 6

[hybrid]
bias = 0.1

[actuator]
kind = "serial"
port = "/dev/ttyACM0"
channels = [5, 4, 3, 2, 1, 0]

[actuator.serial]
baud_rate = 9600
parity = "even"

[source]
kind = "replay"
dir = "/data/frames"
interval = "50ms"
loop = true

[journal]
path = "/var/lib/lanespray/journal.db"

[metrics]
listen = ":9108"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := cfg.Resolve()
	if s.Strategy != vegetation.StrategyThreshold {
		t.Errorf("Strategy = %v, want threshold", s.Strategy)
	}
	if s.Threshold != 40 || s.FireMs != 80 || s.LaneCount != 6 {
		t.Errorf("Spray() = %+v", s)
	}
	if s.HoldoffMs != 200 || s.MinRatio != 0.008 {
		t.Errorf("omitted keys should keep defaults, got %+v", s)
	}
	if s.Hybrid.Bias != 0.1 || s.Hybrid.WExG != 0.5 {
		t.Errorf("Hybrid = %+v", s.Hybrid)
	}
	if cfg.Actuator.Serial.BaudRate != 9600 || cfg.Actuator.Port != "/dev/ttyACM0" {
		t.Errorf("Actuator = %+v", cfg.Actuator)
	}
	if diff := cmp.Diff(cfg.GetChannels(), []int{5, 4, 3, 2, 1, 0}); diff != "" {
		t.Errorf("GetChannels (-got +want):\n%s", diff)
	}
	if cfg.GetSourceInterval() != 50*time.Millisecond || !cfg.Source.Loop {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Metrics.Listen != ":9108" || cfg.Journal.Path == "" {
		t.Errorf("Metrics/Journal = %+v %+v", cfg.Metrics, cfg.Journal)
	}
}

func TestSprayPipeline(t *testing.T) {
	got := Default().Resolve().Pipeline()
	want := pipeline.DefaultConfig(4)
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Pipeline() mismatch (-got +want):\n%s", diff)
	}
	if got.Controller != lanes.DefaultControllerConfig(4) {
		t.Errorf("Controller = %+v", got.Controller)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*File)
	}{
		{"unknown strategy", func(c *File) { c.Spray.Strategy = ptrString("neural") }},
		{"threshold too high", func(c *File) { c.Spray.Threshold = ptrInt(600) }},
		{"bottom_frac negative", func(c *File) { c.Spray.BottomFrac = ptrFloat64(-0.1) }},
		{"min_ratio above one", func(c *File) { c.Spray.MinRatio = ptrFloat64(1.5) }},
		{"hysteresis above one", func(c *File) { c.Spray.Hysteresis = ptrFloat64(2) }},
		{"negative fire_ms", func(c *File) { c.Spray.FireMs = ptrInt64(-1) }},
		{"huge holdoff_ms", func(c *File) { c.Spray.HoldoffMs = ptrInt64(1 << 40) }},
		{"zero lanes", func(c *File) { c.Spray.LaneCount = ptrInt(0) }},
		{"too many lanes", func(c *File) { c.Spray.LaneCount = ptrInt(MaxLanes + 1) }},
		{"hybrid threshold", func(c *File) { c.Hybrid.ExGThreshold = ptrInt(-999) }},
		{"unknown actuator", func(c *File) { c.Actuator.Kind = "gpio" }},
		{"serial without port", func(c *File) { c.Actuator.Kind = "serial" }},
		{"serial bad parity", func(c *File) {
			c.Actuator.Kind = "serial"
			c.Actuator.Port = "/dev/ttyUSB0"
			c.Actuator.Serial.Parity = "mark"
		}},
		{"channel count mismatch", func(c *File) { c.Actuator.Channels = []int{0, 1} }},
		{"channel out of range", func(c *File) { c.Actuator.Channels = []int{0, 1, 2, 40} }},
		{"unknown source", func(c *File) { c.Source.Kind = "camera" }},
		{"replay without dir", func(c *File) { c.Source.Kind = "replay" }},
		{"bad interval", func(c *File) { c.Source.Interval = "soon" }},
		{"source narrower than lanes", func(c *File) { c.Source.Width = 2 }},
		{"bad pattern", func(c *File) { c.Source.Pattern = "plaid" }},
		{"negative journal buffer", func(c *File) { c.Journal.Buffer = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, frame.ErrInvalidInput) {
				t.Errorf("Validate() = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestLoadRejects(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
	t.Run("wrong extension", func(t *testing.T) {
		path := writeConfig(t, "spray.json", `{}`)
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), ".toml extension") {
			t.Errorf("got %v", err)
		}
	})
	t.Run("malformed", func(t *testing.T) {
		path := writeConfig(t, "spray.toml", "[spray\nthreshold = ")
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})
	t.Run("unknown key", func(t *testing.T) {
		path := writeConfig(t, "spray.toml", "[spray]\nfire_msec = 10\n")
		_, err := Load(path)
		if !errors.Is(err, frame.ErrInvalidInput) || !strings.Contains(err.Error(), "spray.fire_msec") {
			t.Errorf("got %v", err)
		}
	})
	t.Run("invalid value", func(t *testing.T) {
		path := writeConfig(t, "spray.toml", "[spray]\nhysteresis = 3.0\n")
		if _, err := Load(path); !errors.Is(err, frame.ErrInvalidInput) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("too large", func(t *testing.T) {
		body := "# " + strings.Repeat("x", maxFileSize) + "\n"
		path := writeConfig(t, "spray.toml", body)
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "too large") {
			t.Errorf("got %v", err)
		}
	})
}

func TestLoadExampleConfigFile(t *testing.T) {
	path := filepath.Join("..", "..", DefaultConfigPath)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}
	if diff := cmp.Diff(cfg.Resolve(), Default().Resolve()); diff != "" {
		t.Errorf("example config drifted from defaults (-got +want):\n%s", diff)
	}
}

func TestGetSourceSize(t *testing.T) {
	w, h := Empty().GetSourceSize()
	if w != 640 || h != 480 {
		t.Errorf("GetSourceSize() = %dx%d, want 640x480", w, h)
	}
}
