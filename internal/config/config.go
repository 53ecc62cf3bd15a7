// Package config loads the lanespray TOML configuration file.
//
// Every tunable in [spray] and [hybrid] is a pointer so a partial file is
// safe: omitted keys fall back to defaults through the Get* accessors.
// Spray resolves the file into the immutable values handed to the pipeline.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/lanespray/internal/actuator"
	"github.com/banshee-data/lanespray/internal/capture"
	"github.com/banshee-data/lanespray/internal/frame"
	"github.com/banshee-data/lanespray/internal/lanes"
	"github.com/banshee-data/lanespray/internal/pipeline"
	"github.com/banshee-data/lanespray/internal/vegetation"
)

// DefaultConfigPath is the example configuration shipped with the repository.
const DefaultConfigPath = "config/lanespray.example.toml"

// MaxLanes bounds lane_count to what one relay mask can address.
const MaxLanes = actuator.MaxRelayChannel + 1

const maxFileSize = 1 * 1024 * 1024 // 1MB

// File is the root of the TOML configuration.
type File struct {
	Spray    SprayTable    `toml:"spray"`
	Hybrid   HybridTable   `toml:"hybrid"`
	Actuator ActuatorTable `toml:"actuator"`
	Source   SourceTable   `toml:"source"`
	Journal  JournalTable  `toml:"journal"`
	Metrics  MetricsTable  `toml:"metrics"`
}

// SprayTable holds the core detection and timing parameters.
type SprayTable struct {
	Strategy   *string  `toml:"strategy"`
	Threshold  *int     `toml:"threshold"`
	BottomFrac *float64 `toml:"bottom_frac"`
	MinRatio   *float64 `toml:"min_ratio"`
	FireMs     *int64   `toml:"fire_ms"`
	HoldoffMs  *int64   `toml:"holdoff_ms"`
	Hysteresis *float64 `toml:"hysteresis"`
	LaneCount  *int     `toml:"lane_count"`
}

// HybridTable overrides the hybrid scorer weights.
type HybridTable struct {
	WExG         *float64 `toml:"w_exg"`
	WRatio       *float64 `toml:"w_ratio"`
	WChroma      *float64 `toml:"w_chroma"`
	Bias         *float64 `toml:"bias"`
	ExGThreshold *int     `toml:"exg_threshold"`
	RatioFloor   *float64 `toml:"ratio_floor"`
	ChromaFloor  *float64 `toml:"chroma_floor"`
}

// ActuatorTable selects the output hardware.
type ActuatorTable struct {
	Kind     string               `toml:"kind"` // "log", "serial" or "none"
	Port     string               `toml:"port"`
	Serial   actuator.PortOptions `toml:"serial"`
	Channels []int                `toml:"channels"`
	Locator  bool                 `toml:"locator"`
}

// SourceTable selects where frames come from.
type SourceTable struct {
	Kind     string `toml:"kind"` // "synthetic" or "replay"
	Width    int    `toml:"width"`
	Height   int    `toml:"height"`
	Interval string `toml:"interval"` // duration string like "33ms"
	Frames   int    `toml:"frames"`
	Pattern  string `toml:"pattern"`
	Dir      string `toml:"dir"`
	Loop     bool   `toml:"loop"`
}

// JournalTable enables the sqlite spray journal when Path is set.
type JournalTable struct {
	Path   string `toml:"path"`
	Buffer int    `toml:"buffer"`
}

// MetricsTable enables the Prometheus endpoint when Listen is set.
type MetricsTable struct {
	Listen string `toml:"listen"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// Empty returns a File with every optional field unset.
func Empty() *File {
	return &File{}
}

// Default returns a File with every field populated with its default.
func Default() *File {
	h := vegetation.DefaultHybridParams()
	c := lanes.DefaultControllerConfig(4)
	return &File{
		Spray: SprayTable{
			Strategy:   ptrString(vegetation.StrategyHybrid.String()),
			Threshold:  ptrInt(int(vegetation.DefaultExGThreshold)),
			BottomFrac: ptrFloat64(0.3),
			MinRatio:   ptrFloat64(float64(c.MinRatio)),
			FireMs:     ptrInt64(int64(c.FireMs)),
			HoldoffMs:  ptrInt64(int64(c.HoldoffMs)),
			Hysteresis: ptrFloat64(float64(c.Hysteresis)),
			LaneCount:  ptrInt(c.Lanes),
		},
		Hybrid: HybridTable{
			WExG:         ptrFloat64(float64(h.WExG)),
			WRatio:       ptrFloat64(float64(h.WRatio)),
			WChroma:      ptrFloat64(float64(h.WChroma)),
			Bias:         ptrFloat64(float64(h.Bias)),
			ExGThreshold: ptrInt(int(h.ExGThreshold)),
			RatioFloor:   ptrFloat64(float64(h.RatioFloor)),
			ChromaFloor:  ptrFloat64(float64(h.ChromaFloor)),
		},
		Actuator: ActuatorTable{Kind: "log"},
		Source:   SourceTable{Kind: "synthetic", Width: 640, Height: 480, Interval: "33ms"},
		Journal:  JournalTable{Buffer: 256},
	}
}

// Load reads a File from a TOML file. The file must have a .toml extension
// and be at most 1MB. Unknown keys are rejected so typos do not silently
// fall back to defaults.
func Load(path string) (*File, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, fmt.Errorf("config file must have .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown config keys: %s", frame.ErrInvalidInput, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{frame.ErrInvalidInput}, args...)...)
}

// Validate checks that the configuration values are valid.
func (c *File) Validate() error {
	s := c.Spray
	if s.Strategy != nil {
		if _, err := vegetation.ParseStrategy(*s.Strategy); err != nil {
			return err
		}
	}
	if s.Threshold != nil && (*s.Threshold < -510 || *s.Threshold > 510) {
		return invalid("threshold must be between -510 and 510, got %d", *s.Threshold)
	}
	if s.BottomFrac != nil && !(*s.BottomFrac >= 0 && *s.BottomFrac <= 1) {
		return invalid("bottom_frac must be between 0 and 1, got %f", *s.BottomFrac)
	}
	if s.MinRatio != nil && !(*s.MinRatio >= 0 && *s.MinRatio <= 1) {
		return invalid("min_ratio must be between 0 and 1, got %f", *s.MinRatio)
	}
	if s.Hysteresis != nil && !(*s.Hysteresis >= 0 && *s.Hysteresis <= 1) {
		return invalid("hysteresis must be between 0 and 1, got %f", *s.Hysteresis)
	}
	if s.FireMs != nil && (*s.FireMs < 0 || *s.FireMs > math.MaxUint32) {
		return invalid("fire_ms out of range: %d", *s.FireMs)
	}
	if s.HoldoffMs != nil && (*s.HoldoffMs < 0 || *s.HoldoffMs > math.MaxUint32) {
		return invalid("holdoff_ms out of range: %d", *s.HoldoffMs)
	}
	if s.LaneCount != nil && (*s.LaneCount < 1 || *s.LaneCount > MaxLanes) {
		return invalid("lane_count must be between 1 and %d, got %d", MaxLanes, *s.LaneCount)
	}
	if h := c.Hybrid.ExGThreshold; h != nil && (*h < -510 || *h > 510) {
		return invalid("hybrid exg_threshold must be between -510 and 510, got %d", *h)
	}

	switch c.Actuator.Kind {
	case "", "log", "none":
	case "serial":
		if c.Actuator.Port == "" {
			return invalid("actuator kind serial needs a port")
		}
		if _, err := c.Actuator.Serial.Normalize(); err != nil {
			return err
		}
	default:
		return invalid("unknown actuator kind %q", c.Actuator.Kind)
	}
	if ch := c.Actuator.Channels; len(ch) > 0 {
		if len(ch) != c.GetLaneCount() {
			return invalid("actuator channels has %d entries for %d lanes", len(ch), c.GetLaneCount())
		}
		for _, v := range ch {
			if v < 0 || v > actuator.MaxRelayChannel {
				return invalid("relay channel %d outside 0-%d", v, actuator.MaxRelayChannel)
			}
		}
	}

	switch c.Source.Kind {
	case "", "synthetic":
		if c.Source.Width < 0 || c.Source.Height < 0 || c.Source.Frames < 0 {
			return invalid("synthetic source geometry %dx%d frames=%d", c.Source.Width, c.Source.Height, c.Source.Frames)
		}
		if c.Source.Width > 0 && c.Source.Width < c.GetLaneCount() {
			return invalid("source width %d narrower than %d lanes", c.Source.Width, c.GetLaneCount())
		}
		if _, err := capture.ParsePattern(c.Source.Pattern); err != nil {
			return err
		}
	case "replay":
		if c.Source.Dir == "" {
			return invalid("replay source needs a dir")
		}
	default:
		return invalid("unknown source kind %q", c.Source.Kind)
	}
	if c.Source.Interval != "" {
		if d, err := time.ParseDuration(c.Source.Interval); err != nil || d < 0 {
			return invalid("invalid source interval '%s'", c.Source.Interval)
		}
	}
	if c.Journal.Buffer < 0 {
		return invalid("journal buffer must be non-negative, got %d", c.Journal.Buffer)
	}
	return nil
}

// GetStrategy returns the strategy or the default.
func (c *File) GetStrategy() vegetation.Strategy {
	if c.Spray.Strategy == nil {
		return vegetation.StrategyHybrid
	}
	s, err := vegetation.ParseStrategy(*c.Spray.Strategy)
	if err != nil {
		return vegetation.StrategyHybrid
	}
	return s
}

// GetThreshold returns the ExG threshold or the default.
func (c *File) GetThreshold() int16 {
	if c.Spray.Threshold == nil {
		return vegetation.DefaultExGThreshold
	}
	return int16(*c.Spray.Threshold)
}

// GetBottomFrac returns bottom_frac or the default.
func (c *File) GetBottomFrac() float32 {
	if c.Spray.BottomFrac == nil {
		return 0.3
	}
	return float32(*c.Spray.BottomFrac)
}

// GetMinRatio returns min_ratio or the default.
func (c *File) GetMinRatio() float32 {
	if c.Spray.MinRatio == nil {
		return 0.008
	}
	return float32(*c.Spray.MinRatio)
}

// GetFireMs returns fire_ms or the default.
func (c *File) GetFireMs() uint32 {
	if c.Spray.FireMs == nil {
		return 60
	}
	return uint32(*c.Spray.FireMs)
}

// GetHoldoffMs returns holdoff_ms or the default.
func (c *File) GetHoldoffMs() uint32 {
	if c.Spray.HoldoffMs == nil {
		return 200
	}
	return uint32(*c.Spray.HoldoffMs)
}

// GetHysteresis returns hysteresis or the default.
func (c *File) GetHysteresis() float32 {
	if c.Spray.Hysteresis == nil {
		return 0.5
	}
	return float32(*c.Spray.Hysteresis)
}

// GetLaneCount returns lane_count or the default.
func (c *File) GetLaneCount() int {
	if c.Spray.LaneCount == nil {
		return 4
	}
	return *c.Spray.LaneCount
}

// GetHybrid returns the hybrid weights with overrides applied.
func (c *File) GetHybrid() vegetation.HybridParams {
	p := vegetation.DefaultHybridParams()
	h := c.Hybrid
	set := func(dst *float32, v *float64) {
		if v != nil {
			*dst = float32(*v)
		}
	}
	set(&p.WExG, h.WExG)
	set(&p.WRatio, h.WRatio)
	set(&p.WChroma, h.WChroma)
	set(&p.Bias, h.Bias)
	set(&p.RatioFloor, h.RatioFloor)
	set(&p.ChromaFloor, h.ChromaFloor)
	if h.ExGThreshold != nil {
		p.ExGThreshold = int16(*h.ExGThreshold)
	}
	return p
}

// GetSourceInterval parses the source interval, defaulting to 33ms.
func (c *File) GetSourceInterval() time.Duration {
	if c.Source.Interval == "" {
		return 33 * time.Millisecond
	}
	d, err := time.ParseDuration(c.Source.Interval)
	if err != nil {
		return 33 * time.Millisecond
	}
	return d
}

// GetSourceSize returns the synthetic frame size, defaulting to 640x480.
func (c *File) GetSourceSize() (width, height int) {
	width, height = c.Source.Width, c.Source.Height
	if width == 0 {
		width = 640
	}
	if height == 0 {
		height = 480
	}
	return width, height
}

// GetChannels returns the relay channel map, defaulting to identity.
func (c *File) GetChannels() []int {
	if len(c.Actuator.Channels) > 0 {
		return append([]int(nil), c.Actuator.Channels...)
	}
	return actuator.IdentityChannels(c.GetLaneCount())
}

// Spray is the resolved, immutable detection and timing configuration.
type Spray struct {
	Strategy   vegetation.Strategy
	Threshold  int16
	Hybrid     vegetation.HybridParams
	BottomFrac float32
	MinRatio   float32
	FireMs     uint32
	HoldoffMs  uint32
	Hysteresis float32
	LaneCount  int
}

// Resolve resolves the [spray] and [hybrid] tables.
func (c *File) Resolve() Spray {
	return Spray{
		Strategy:   c.GetStrategy(),
		Threshold:  c.GetThreshold(),
		Hybrid:     c.GetHybrid(),
		BottomFrac: c.GetBottomFrac(),
		MinRatio:   c.GetMinRatio(),
		FireMs:     c.GetFireMs(),
		HoldoffMs:  c.GetHoldoffMs(),
		Hysteresis: c.GetHysteresis(),
		LaneCount:  c.GetLaneCount(),
	}
}

// Pipeline maps the resolved values onto a pipeline configuration.
func (s Spray) Pipeline() pipeline.Config {
	return pipeline.Config{
		Strategy:     s.Strategy,
		ExGThreshold: s.Threshold,
		Hybrid:       s.Hybrid,
		BottomFrac:   s.BottomFrac,
		Controller: lanes.ControllerConfig{
			Lanes:      s.LaneCount,
			MinRatio:   s.MinRatio,
			FireMs:     s.FireMs,
			HoldoffMs:  s.HoldoffMs,
			Hysteresis: s.Hysteresis,
		},
	}
}
