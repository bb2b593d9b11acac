// Package cmd parses the command line into a validated configuration.
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"shaderviz/internal/config"
	"shaderviz/pkg/build"
)

// Commands other than the default visualizer.
const (
	CommandList    = "list"
	CommandVersion = "version"
)

// Options is the parsed command line. Config already has the flags that
// were set layered over the file and environment values.
type Options struct {
	Command    string
	ConfigPath string
	Config     *config.Config
	Backend    string
	Verbose    bool
	// Plain prints the device list instead of opening the browser.
	Plain bool
}

// flagValues holds every flag that maps onto a config field.
type flagValues struct {
	shaderPath string
	srgb       bool
	fps        bool
	imagePath  string
	pi         bool
	time       float32
	width      int
	height     int

	cam       bool
	camDevice string

	audioFile  string
	playAudio  bool
	loop       bool
	device     int
	sampleRate float64
	frames     int
	lowLatency bool
	windowSize int
	feature    string

	record    bool
	recordDir string

	udp     string
	ws      string
	metrics string
}

// ParseArgs parses args (without the program name). A nil Options with a
// nil error means help or the version flag was printed.
func ParseArgs(args []string, out io.Writer) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{}
	var fv flagValues
	ran := false

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ran = true
			return opts.load(cmd.Flags(), &fv)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   CommandList,
		Short: "Browse audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ran = true
			opts.Command = CommandList
			return opts.load(cmd.Flags(), &fv)
		},
	}
	listCmd.Flags().BoolVar(&opts.Plain, "plain", false, "Print the devices instead of opening the browser")
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandVersion,
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			ran = true
			opts.Command = CommandVersion
		},
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "YAML configuration file (default ./config.yaml if present)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "Show debug output")
	pf.StringVar(&opts.Backend, "backend", "webgpu", "GPU backend: webgpu or gl")

	// Render
	pf.StringVar(&fv.shaderPath, "shader-path", config.DefaultShaderPath, "Fragment shader (GLSL 450)")
	pf.BoolVar(&fv.srgb, "srgb", false, "Prefer an sRGB surface format")
	pf.BoolVar(&fv.fps, "fps", false, "Log the frame rate every second")
	pf.StringVar(&fv.imagePath, "image-path", "", "Render one frame to this file (.png, .bmp, .tiff) and exit")
	pf.BoolVar(&fv.pi, "pi", false, "Constrained display: smaller draw rectangle and the GL backend")
	pf.Float32Var(&fv.time, "time", 0, "Seconds added to the shader clock")
	pf.IntVar(&fv.width, "width", config.DefaultWidth, "Window width")
	pf.IntVar(&fv.height, "height", config.DefaultHeight, "Window height")

	// Eye tracking
	pf.BoolVar(&fv.cam, "cam", false, "Track eyes from the camera")
	pf.StringVar(&fv.camDevice, "cam-device", config.DefaultCameraDevice, "Camera device, or a directory of frames")

	// Audio
	pf.StringVar(&fv.audioFile, "audio-file", "", "Drive the visuals from a wav, aiff, mp3 or ogg file instead of the microphone")
	pf.BoolVar(&fv.playAudio, "play-audio", false, "Play the audio file on the output device")
	pf.BoolVar(&fv.loop, "loop", false, "Repeat the audio file")
	pf.IntVarP(&fv.device, "device", "d", config.DefaultDeviceID, "Input device ID. Use 'list' to see available devices.")
	pf.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate, "Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&fv.frames, "frames-per-buffer", "b", config.DefaultFramesPerBuffer, "The number of frames per buffer (affects latency)")
	pf.BoolVarP(&fv.lowLatency, "low-latency", "l", false, "Use low latency mode for real-time processing")
	pf.IntVar(&fv.windowSize, "window-size", config.DefaultWindowSize, "Samples per analysis window")
	pf.StringVar(&fv.feature, "feature", config.DefaultFeatureMode, "Feature sent to the shader: centroid or spectrum")

	// Recording
	pf.BoolVarP(&fv.record, "record", "r", false, "Record the live input to WAV")
	pf.StringVarP(&fv.recordDir, "output", "o", config.DefaultRecordingDir, "Recording directory")

	// Taps
	pf.StringVar(&fv.udp, "udp", "", "Send features as UDP packets to host:port")
	pf.StringVar(&fv.ws, "ws", "", "Serve features over websocket on this address")
	pf.StringVar(&fv.metrics, "metrics", "", "Serve Prometheus metrics on this address")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if !ran {
		return nil, nil
	}
	return opts, nil
}

// load reads the configuration and applies every flag the user set.
func (o *Options) load(flags *pflag.FlagSet, fv *flagValues) error {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	fv.apply(flags, cfg)
	if o.Verbose {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.Config = cfg
	return nil
}

func (fv *flagValues) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if flags.Changed(name) {
			fn()
		}
	}
	set("shader-path", func() { cfg.Render.ShaderPath = fv.shaderPath })
	set("srgb", func() { cfg.Render.SRGB = fv.srgb })
	set("fps", func() { cfg.Render.FPS = fv.fps })
	set("image-path", func() { cfg.Render.ImagePath = fv.imagePath })
	set("pi", func() { cfg.Render.Pi = fv.pi })
	set("time", func() { cfg.Render.TimeOffset = fv.time })
	set("width", func() { cfg.Render.Width = fv.width })
	set("height", func() { cfg.Render.Height = fv.height })

	set("cam", func() { cfg.Eye.Enabled = fv.cam })
	set("cam-device", func() { cfg.Eye.Device = fv.camDevice })

	set("audio-file", func() {
		cfg.Audio.File = fv.audioFile
		cfg.Audio.Source = config.SourceFile
	})
	set("play-audio", func() { cfg.Audio.Monitor = fv.playAudio })
	set("loop", func() { cfg.Audio.Loop = fv.loop })
	set("device", func() { cfg.Audio.InputDevice = fv.device })
	set("sample-rate", func() { cfg.Audio.SampleRate = fv.sampleRate })
	set("frames-per-buffer", func() { cfg.Audio.FramesPerBuffer = fv.frames })
	set("low-latency", func() { cfg.Audio.LowLatency = fv.lowLatency })
	set("window-size", func() { cfg.Audio.WindowSize = fv.windowSize })
	set("feature", func() { cfg.Audio.FeatureMode = fv.feature })

	set("record", func() { cfg.Recording.Enabled = fv.record })
	set("output", func() { cfg.Recording.OutputDir = fv.recordDir })

	set("udp", func() {
		cfg.Transport.UDPEnabled = fv.udp != ""
		cfg.Transport.UDPTargetAddress = fv.udp
	})
	set("ws", func() {
		cfg.Transport.WebSocketEnabled = fv.ws != ""
		cfg.Transport.WebSocketAddress = fv.ws
	})
	set("metrics", func() {
		cfg.Metrics.Enabled = fv.metrics != ""
		cfg.Metrics.Address = fv.metrics
	})
}

// Usage is printed by main when the default command fails early.
func Usage(name string) string {
	return fmt.Sprintf("Run '%s --help' for usage information.", name)
}
