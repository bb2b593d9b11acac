package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the visualizer.
const (
	// Audio defaults
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultChannels        = 1           // Mono capture
	DefaultWindowSize      = 1024        // Samples per analysis window
	DefaultFFTWindow       = "Hann"
	DefaultFeatureMode     = "centroid"
	DefaultWindowPolicy    = "ring"
	DefaultGateThreshold   = 0.0 // Gate disabled

	// Recording defaults
	DefaultRecordingDir = "./recordings"
	DefaultBitDepth     = 16

	// Eye tracking defaults
	DefaultCameraDevice = "/dev/video0"
	DefaultCameraFormat = "v4l2"
	DefaultCameraWidth  = 320
	DefaultCameraHeight = 240
	DefaultMaxEyes      = 16

	// Render defaults
	DefaultShaderPath  = "shaders/shader.frag"
	DefaultImagePath   = "screen.png"
	DefaultWindowTitle = "shaderviz"
	DefaultWidth       = 1280
	DefaultHeight      = 720
	DefaultSliderCount = 10

	// Transport defaults
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz
	DefaultWebSocketAddress = "127.0.0.1:8080"

	// Metrics defaults
	DefaultMetricsAddress = "127.0.0.1:9464"

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
	MinWindowSize   = 2
	MaxWindowSize   = 65536
	MaxSliderCount  = 64
)

// Default returns the built-in configuration used when no file is found.
// LoadConfig unmarshals on top of it, so a file only needs the keys it
// changes.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Source:          SourceLive,
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
			WindowSize:      DefaultWindowSize,
			WindowPolicy:    DefaultWindowPolicy,
			FFTWindow:       DefaultFFTWindow,
			FeatureMode:     DefaultFeatureMode,
			GateThreshold:   DefaultGateThreshold,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultBitDepth,
		},
		Eye: EyeConfig{
			Device:  DefaultCameraDevice,
			Format:  DefaultCameraFormat,
			Width:   DefaultCameraWidth,
			Height:  DefaultCameraHeight,
			MaxEyes: DefaultMaxEyes,
		},
		Render: RenderConfig{
			ShaderPath:  DefaultShaderPath,
			Title:       DefaultWindowTitle,
			Width:       DefaultWidth,
			Height:      DefaultHeight,
			SliderCount: DefaultSliderCount,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			WebSocketAddress: DefaultWebSocketAddress,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
	}
}
