package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shaderviz/cmd"
	"shaderviz/internal/analysis"
	"shaderviz/internal/audio"
	"shaderviz/internal/config"
	"shaderviz/internal/eye"
	"shaderviz/internal/gpu"
	"shaderviz/internal/log"
	"shaderviz/internal/observe"
	"shaderviz/internal/render"
	"shaderviz/internal/shared"
	"shaderviz/internal/transport"
	"shaderviz/internal/transport/udp"
	"shaderviz/internal/tui"
	"shaderviz/internal/window"
	"shaderviz/pkg/build"
)

// glfw and the GPU drivers must stay on the main thread.
func init() {
	runtime.LockOSThread()
}

// main is the entry point for the visualizer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase:
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase:
//   - Audio capture or file playback publishes features
//   - Eye tracking publishes positions when enabled
//   - Taps and the metrics endpoint read them
//   - The render loop owns the main thread until the window closes
//
// 3. Shutdown Phase:
//   - Cancel the producers and wait for them
//   - Stop recording and release PortAudio
func main() {
	// ==================== STARTUP PHASE ====================

	if err := build.Initialize(); err != nil {
		log.Debugf("%v; using development build info", err)
	}
	info := build.GetBuildFlags()

	opts, err := cmd.ParseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatalf("%v. %s", err, cmd.Usage(info.Name))
	}
	if opts == nil {
		return
	}
	if opts.Config != nil {
		log.SetLevel(opts.Config.Level())
	}

	switch opts.Command {
	case cmd.CommandVersion:
		fmt.Println(info.Summary())
		return
	case cmd.CommandList:
		if err := listDevices(opts.Plain); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	log.Infof("%s", info.Summary())
	if err := run(opts); err != nil {
		log.Fatalf("%v", err)
	}
}

// listDevices shows the input devices, interactively unless plain.
func listDevices(plain bool) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if plain {
		devices, err := audio.HostDevices()
		if err != nil {
			return err
		}
		audio.WriteDeviceList(os.Stdout, devices)
		return nil
	}
	sel, err := tui.StartDeviceListUI()
	if err != nil || sel == nil {
		return err
	}
	fmt.Printf("audio:\n  input_device: %d # %s\n  sample_rate: %.0f\n", sel.DeviceID, sel.Name, sel.SampleRate)
	return nil
}

func run(opts *cmd.Options) error {
	cfg := opts.Config
	backend, err := window.ParseBackend(opts.Backend)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ==================== CONCURRENT PHASE ====================

	// Background work runs under gctx. None of it can end the render loop,
	// which only watches ctx.
	var metrics *observe.Metrics
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		provider, err := observe.InitProvider(observe.ProviderConfig{ServiceVersion: build.GetBuildFlags().Version})
		if err != nil {
			return err
		}
		defer provider.Shutdown(context.Background())
		metrics = provider.Metrics
		goBackground(gctx, g, "metrics", func(ctx context.Context) error {
			return provider.Serve(ctx, cfg.Metrics.Address)
		})
	}

	fd, err := startProducers(gctx, g, cfg, metrics)
	if err != nil {
		return err
	}
	startTaps(gctx, g, cfg.Transport, fd.features, fd.eyes)

	shaders, err := render.LoadShaders(cfg.Render.ShaderPath, !isSet(cfg.Render.ShaderPath))
	if err != nil {
		return err
	}
	wopts := window.Options{
		Title:   cfg.Render.Title,
		Size:    gpu.Size{Width: cfg.Render.Width, Height: cfg.Render.Height},
		Backend: backend,
		Render: render.Options{
			Shaders:     shaders,
			SRGB:        cfg.Render.SRGB,
			Pi:          cfg.Render.Pi,
			TimeOffset:  cfg.Render.TimeOffset,
			Sliders:     cfg.Render.SliderCount,
			MaxEyes:     cfg.Eye.MaxEyes,
			SpectrumLen: fd.spectrumLen,
			SampleRate:  fd.sampleRate,
			Features:    fd.features,
			Eyes:        fd.eyes,
			ImagePath:   cfg.Render.ImagePath,
			ShowFPS:     cfg.Render.FPS,
			Metrics:     metrics,
		},
	}

	// The render loop runs here, on the locked main thread.
	var renderErr error
	if cfg.Render.ImagePath != "" {
		renderErr = window.Export(ctx, wopts)
		if renderErr == nil {
			log.Infof("wrote %s", cfg.Render.ImagePath)
		}
	} else {
		renderErr = window.Run(ctx, wopts)
	}

	// ==================== SHUTDOWN PHASE ====================

	stop()
	if err := g.Wait(); err != nil {
		log.Warnf("shutdown: %v", err)
	}
	return renderErr
}

// isSet reports whether path differs from the default shader location, in
// which case a missing file is an error rather than a fallback.
func isSet(path string) bool { return path != config.DefaultShaderPath }

// goBackground runs fn in g. Its error is logged and swallowed so that it
// cancels neither gctx nor the other goroutines.
func goBackground(ctx context.Context, g *errgroup.Group, name string, fn func(context.Context) error) {
	g.Go(func() error {
		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("%s stopped: %v", name, err)
		}
		return nil
	})
}

// feeds are the shared buffers the render loop reads.
type feeds struct {
	features    *shared.Floats
	eyes        *shared.Points // nil unless eye tracking is enabled
	spectrumLen int
	sampleRate  float64
}

// startProducers starts audio and, when enabled, eye tracking. A subsystem
// that cannot start is logged and its buffer stays at its initial value;
// only invalid analysis settings are returned as errors.
func startProducers(ctx context.Context, g *errgroup.Group, cfg *config.Config, metrics *observe.Metrics) (feeds, error) {
	f, err := startAudio(ctx, g, cfg, metrics)
	if err != nil {
		return feeds{}, err
	}
	if cfg.Eye.Enabled {
		f.eyes = shared.NewPoints()
		if err := startEyes(ctx, g, cfg.Eye, f.eyes, metrics); err != nil {
			log.Errorf("eye tracking unavailable: %v", err)
		}
	}
	return f, nil
}

// startAudio builds the extractor pipeline and starts live capture or file
// playback. The feature buffer is returned even when capture could not
// start.
func startAudio(ctx context.Context, g *errgroup.Group, cfg *config.Config, metrics *observe.Metrics) (feeds, error) {
	ac := cfg.Audio
	mode, err := analysis.ParseMode(ac.FeatureMode)
	if err != nil {
		return feeds{}, err
	}
	wf, err := analysis.ParseWindowFunc(ac.FFTWindow)
	if err != nil {
		return feeds{}, err
	}
	policy, err := audio.ParsePolicy(ac.WindowPolicy)
	if err != nil {
		return feeds{}, err
	}

	var src audio.Source
	var srcErr error
	rate := ac.SampleRate
	if ac.Source == config.SourceFile {
		if src, srcErr = audio.OpenSource(ac.File); srcErr == nil {
			rate = float64(src.SampleRate())
		}
	}

	ext, err := analysis.NewExtractor(analysis.Options{WindowSize: ac.WindowSize, SampleRate: rate, Mode: mode, Window: wf})
	if err != nil {
		closeSource(src)
		return feeds{}, err
	}
	f := feeds{features: shared.NewFloats(ext.FeatureLen()), sampleRate: rate}
	if mode == analysis.ModeSpectrum {
		f.spectrumLen = ext.FeatureLen()
	}
	pipeline, err := audio.NewPipeline(audio.NewWindower(policy, ac.WindowSize), ext, audio.NewGate(ac.GateThreshold), f.features, metrics)
	if err != nil {
		closeSource(src)
		return feeds{}, err
	}

	if srcErr != nil {
		log.Errorf("audio file unavailable, rendering without audio: %v", srcErr)
		return f, nil
	}
	if err := startCapture(ctx, g, cfg, src, rate, pipeline); err != nil {
		log.Errorf("audio unavailable, rendering without audio: %v", err)
	}
	log.Infof("audio features: %s, %d-sample windows", mode, ac.WindowSize)
	return f, nil
}

// startCapture runs the player for src, or live capture when src is nil.
// It owns src and releases it on failure.
func startCapture(ctx context.Context, g *errgroup.Group, cfg *config.Config, src audio.Source, rate float64, pipeline *audio.Pipeline) error {
	ac := cfg.Audio

	// PortAudio backs both live capture and the playback monitor.
	needPortAudio := src == nil || ac.Monitor
	if needPortAudio {
		if err := audio.Initialize(); err != nil {
			closeSource(src)
			return err
		}
	}
	terminate := func() {
		if needPortAudio {
			if err := audio.Terminate(); err != nil {
				log.Warnf("%v", err)
			}
		}
	}

	if src != nil {
		popts := audio.PlayerOptions{
			ChunkFrames: ac.FramesPerBuffer,
			Loop:        ac.Loop,
			Reopen:      func() (audio.Source, error) { return audio.OpenSource(ac.File) },
		}
		if ac.Monitor {
			mon, err := audio.OpenMonitor(ac.OutputDevice, src.Channels(), rate, ac.FramesPerBuffer)
			if err != nil {
				// Analysis still runs without hearing the file.
				log.Warnf("playback monitor unavailable: %v", err)
			} else {
				popts.Monitor = mon
			}
		}
		player, err := audio.NewPlayer(src, pipeline, popts)
		if err != nil {
			if popts.Monitor != nil {
				popts.Monitor.Close()
			}
			closeSource(src)
			terminate()
			return err
		}
		log.Infof("playing %s", ac.File)
		goBackground(ctx, g, "audio playback", func(ctx context.Context) error {
			defer terminate()
			return player.Run(ctx)
		})
		return nil
	}

	engine, err := audio.NewEngine(&ac, pipeline)
	if err != nil {
		terminate()
		return err
	}
	if cfg.Recording.Enabled {
		if err := startRecording(engine, cfg.Recording); err != nil {
			log.Warnf("recording disabled: %v", err)
		}
	}
	goBackground(ctx, g, "audio capture", func(ctx context.Context) error {
		defer terminate()
		return engine.Run(ctx)
	})
	return nil
}

func startRecording(engine *audio.Engine, rc config.RecordingConfig) error {
	if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
		return err
	}
	path := audio.RecordingPath(rc.OutputDir, time.Now())
	if err := engine.StartRecording(path, rc.BitDepth); err != nil {
		return err
	}
	log.Infof("recording to %s", path)
	return nil
}

func closeSource(src audio.Source) {
	if src != nil {
		src.Close()
	}
}

// startEyes opens the camera, or a directory of frames, and runs the
// tracker.
func startEyes(ctx context.Context, g *errgroup.Group, ec config.EyeConfig, out *shared.Points, metrics *observe.Metrics) error {
	var src eye.FrameSource
	if fi, err := os.Stat(ec.Device); err == nil && fi.IsDir() {
		paths, err := framePaths(ec.Device)
		if err != nil {
			return err
		}
		seq, err := eye.NewImageSequence(paths, true)
		if err != nil {
			return err
		}
		src = seq
	} else {
		s, err := eye.NewFFmpegSource(eye.FFmpegOptions{Device: ec.Device, Format: ec.Format, Width: ec.Width, Height: ec.Height})
		if err != nil {
			return fmt.Errorf("open camera %s: %w", ec.Device, err)
		}
		src = s
	}

	dopts := eye.DetectorOptions{}
	if ec.Template != "" {
		tmpl, err := eye.LoadTemplate(ec.Template)
		if err != nil {
			src.Close()
			return err
		}
		dopts.Template = tmpl
	}
	tracker := eye.NewTracker(src, eye.NewDetector(dopts), out, metrics, ec.MaxEyes)
	goBackground(ctx, g, "eye tracking", tracker.Run)
	return nil
}

// framePaths lists the images in dir in name order.
func framePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	slices.Sort(paths)
	return paths, nil
}

// startTaps starts the enabled feature taps. A tap that cannot start is
// logged and skipped.
func startTaps(ctx context.Context, g *errgroup.Group, tc config.TransportConfig, features *shared.Floats, eyes *shared.Points) {
	if tc.UDPEnabled {
		if err := startUDP(ctx, g, tc, features); err != nil {
			log.Errorf("udp tap disabled: %v", err)
		}
	}

	if tc.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(tc.WebSocketAddress)
		if err != nil {
			log.Errorf("websocket tap disabled: %v", err)
			return
		}
		transports := []transport.Transport{ws}
		if log.GetLevel() == log.LevelDebug {
			transports = append(transports, transport.NewLoggingTransport())
		}
		tap := transport.NewTap(features, eyes, tc.UDPSendInterval, transports...)
		goBackground(ctx, g, "websocket tap", tap.Run)
	}
}

func startUDP(ctx context.Context, g *errgroup.Group, tc config.TransportConfig, features *shared.Floats) error {
	sender, err := udp.NewUDPSender(tc.UDPTargetAddress)
	if err != nil {
		return err
	}
	pub, err := udp.NewUDPPublisher(tc.UDPSendInterval, sender, features)
	if err != nil {
		sender.Close()
		return err
	}
	pub.Start()
	goBackground(ctx, g, "udp tap", func(ctx context.Context) error {
		<-ctx.Done()
		return pub.Close()
	})
	return nil
}
