// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shaderviz/internal/log"
)

var logger = log.New("config")

// ErrInvalid wraps every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Audio sources.
const (
	SourceLive = "live" // PortAudio input device
	SourceFile = "file" // Pre-recorded file paced to real time
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Forces the debug log level.
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn", "error".
	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	Eye       EyeConfig       `yaml:"eye"`
	Render    RenderConfig    `yaml:"render"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AudioConfig holds capture and analysis settings.
type AudioConfig struct {
	Source          string  `yaml:"source"`            // "live" or "file".
	File            string  `yaml:"file"`              // wav, mp3 or ogg path when source is "file".
	Loop            bool    `yaml:"loop"`              // Restart the file when it ends.
	Monitor         bool    `yaml:"monitor"`           // Also play the file on the output device.
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for input (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for the monitor (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Capture rate in Hz; file sources use their own rate.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per PortAudio callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio.
	InputChannels   int     `yaml:"input_channels"`    // Channels captured; analysis uses the first.
	WindowSize      int     `yaml:"window_size"`       // Samples per analysis window.
	WindowPolicy    string  `yaml:"window_policy"`     // "tumbling" or "ring".
	FFTWindow       string  `yaml:"fft_window"`        // Window function name (e.g. "Hann").
	FeatureMode     string  `yaml:"feature_mode"`      // "centroid" or "spectrum".
	GateThreshold   float64 `yaml:"gate_threshold"`    // Peak below which a window is treated as silence.
}

// RecordingConfig holds settings related to recording the live input.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"` // 16 or 24.
}

// EyeConfig configures the optional camera loop.
type EyeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Device   string `yaml:"device"`   // ffmpeg input (e.g. /dev/video0), or a directory of frames.
	Format   string `yaml:"format"`   // ffmpeg input format (v4l2, avfoundation, dshow).
	Width    int    `yaml:"width"`    // Frame width requested from the camera.
	Height   int    `yaml:"height"`   // Frame height requested from the camera.
	Template string `yaml:"template"` // Optional grayscale template image.
	MaxEyes  int    `yaml:"max_eyes"` // Capacity of the eye storage buffer.
}

// RenderConfig holds shader and output settings.
type RenderConfig struct {
	ShaderPath  string  `yaml:"shader_path"`
	ImagePath   string  `yaml:"image_path"` // Non-empty selects the one-shot file render.
	SRGB        bool    `yaml:"srgb"`
	FPS         bool    `yaml:"fps"`
	Pi          bool    `yaml:"pi"`
	TimeOffset  float32 `yaml:"time_offset"`
	Title       string  `yaml:"title"`
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	SliderCount int     `yaml:"slider_count"`
}

// TransportConfig holds settings for the feature tap.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddress string        `yaml:"websocket_address"` // Listen address for /ws.
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "shaderviz.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		logger.Debugf("loaded %s", path)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks ranges and enumerations. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	a := c.Audio
	switch a.Source {
	case SourceLive:
	case SourceFile:
		if a.File == "" {
			return fmt.Errorf("%w: audio.file must be set when audio.source is %q", ErrInvalid, SourceFile)
		}
	default:
		return fmt.Errorf("%w: audio.source %q (want %q or %q)", ErrInvalid, a.Source, SourceLive, SourceFile)
	}
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		return fmt.Errorf("%w: device ids must be >= %d", ErrInvalid, MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate %.0f outside [%d, %d]", ErrInvalid, a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: audio.frames_per_buffer %d outside (0, %d]", ErrInvalid, a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 {
		return fmt.Errorf("%w: audio.input_channels must be at least 1", ErrInvalid)
	}
	if a.WindowSize < MinWindowSize || a.WindowSize > MaxWindowSize {
		return fmt.Errorf("%w: audio.window_size %d outside [%d, %d]", ErrInvalid, a.WindowSize, MinWindowSize, MaxWindowSize)
	}
	switch strings.ToLower(a.WindowPolicy) {
	case "tumbling", "ring":
	default:
		return fmt.Errorf("%w: audio.window_policy %q", ErrInvalid, a.WindowPolicy)
	}
	switch strings.ToLower(a.FeatureMode) {
	case "centroid", "spectrum":
	default:
		return fmt.Errorf("%w: audio.feature_mode %q", ErrInvalid, a.FeatureMode)
	}
	if a.GateThreshold < 0 || a.GateThreshold > 1 {
		return fmt.Errorf("%w: audio.gate_threshold %.3f outside [0, 1]", ErrInvalid, a.GateThreshold)
	}

	if c.Recording.Enabled && c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 {
		return fmt.Errorf("%w: recording.bit_depth %d (want 16 or 24)", ErrInvalid, c.Recording.BitDepth)
	}

	if c.Eye.Enabled {
		if c.Eye.Device == "" {
			return fmt.Errorf("%w: eye.device must be set when eye tracking is enabled", ErrInvalid)
		}
		if c.Eye.Width <= 0 || c.Eye.Height <= 0 {
			return fmt.Errorf("%w: eye frame size %dx%d", ErrInvalid, c.Eye.Width, c.Eye.Height)
		}
	}
	if c.Eye.MaxEyes < 1 {
		return fmt.Errorf("%w: eye.max_eyes must be at least 1", ErrInvalid)
	}

	r := c.Render
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: render size %dx%d", ErrInvalid, r.Width, r.Height)
	}
	if r.SliderCount < 0 || r.SliderCount > MaxSliderCount {
		return fmt.Errorf("%w: render.slider_count %d outside [0, %d]", ErrInvalid, r.SliderCount, MaxSliderCount)
	}

	t := c.Transport
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("%w: transport.udp_target_address '%s' appears invalid (missing port?)", ErrInvalid, t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("%w: transport.udp_send_interval must be positive when UDP is enabled", ErrInvalid)
		}
	}
	if t.WebSocketEnabled && t.WebSocketAddress == "" {
		return fmt.Errorf("%w: transport.websocket_address must be set when the websocket tap is enabled", ErrInvalid)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("%w: metrics.address must be set when metrics are enabled", ErrInvalid)
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}

	return nil
}

// Level resolves the configured log level; Debug wins over LogLevel.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// applyEnvOverrides lets ENV_* variables override file values. Malformed
// values are logged and ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.
	envBool("ENV_DEBUG", &c.Debug)
	envString("ENV_LOG_LEVEL", &c.LogLevel)

	// ENV_AUDIO_{...}
	envString("ENV_AUDIO_SOURCE", &c.Audio.Source)
	envString("ENV_AUDIO_FILE", &c.Audio.File)
	envInt("ENV_AUDIO_INPUT_DEVICE", &c.Audio.InputDevice)
	envInt("ENV_AUDIO_WINDOW_SIZE", &c.Audio.WindowSize)
	envString("ENV_AUDIO_FEATURE_MODE", &c.Audio.FeatureMode)

	// ENV_EYE_{...}
	envBool("ENV_EYE_ENABLED", &c.Eye.Enabled)
	envString("ENV_EYE_DEVICE", &c.Eye.Device)

	// ENV_UDP_{...}
	// These are specific to the transport layer.
	envBool("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			logger.Infof("overriding transport.udp_send_interval from env: %s", dur)
		} else {
			logger.Warnf("ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}
	envBool("ENV_WS_ENABLED", &c.Transport.WebSocketEnabled)

	// ENV_METRICS_{...}
	envBool("ENV_METRICS_ENABLED", &c.Metrics.Enabled)
	envString("ENV_METRICS_ADDRESS", &c.Metrics.Address)
}

func envString(name string, dst *string) {
	if val, ok := os.LookupEnv(name); ok {
		*dst = val
		logger.Infof("overriding %s from env: %s", name, val)
	}
}

func envBool(name string, dst *bool) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		logger.Warnf("ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = b
	logger.Infof("overriding %s from env: %v", name, b)
}

func envInt(name string, dst *int) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		logger.Warnf("ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = n
	logger.Infof("overriding %s from env: %d", name, n)
}
