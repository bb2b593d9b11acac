// SPDX-License-Identifier: MIT
/*
Package audio implements the capture side of the visualizer:
- Live capture from a PortAudio input device
- File playback (wav, aiff, mp3, ogg) paced to real time
- Tumbling or ring-buffer analysis windows feeding the spectral extractor
- Noise gate and WAV recording of the live input

Thread Safety:
- The PortAudio callback only touches pre-allocated buffers
- Features leave the callback through shared.Floats, never a channel
- Recording state is switched under a mutex held for one encoder write
*/
package audio

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/gordonklaus/portaudio"

	"shaderviz/internal/config"
	"shaderviz/internal/log"
)

var logger = log.New("audio")

type Engine struct {
	// Core configuration and state.
	config *config.AudioConfig

	// Audio input handling.
	inputBuffer  []float32
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Analysis: mono downmix feeding the shared pipeline.
	pipeline *Pipeline
	mono     []float32

	recorder *Recorder
}

// NewEngine resolves the input device and pre-allocates the callback
// buffers. PortAudio must be initialised.
func NewEngine(cfg *config.AudioConfig, pipeline *Pipeline) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}

	engine := newEngine(cfg, pipeline)
	engine.inputDevice = inputDevice

	if cfg.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}

	logger.Infof("input device %q, %d ch @ %.0f Hz, %d frames per buffer",
		inputDevice.Name, cfg.InputChannels, cfg.SampleRate, cfg.FramesPerBuffer)

	return engine, nil
}

// newEngine builds an engine without touching PortAudio.
func newEngine(cfg *config.AudioConfig, pipeline *Pipeline) *Engine {
	return &Engine{
		config:      cfg,
		inputBuffer: make([]float32, cfg.FramesPerBuffer*cfg.InputChannels),
		pipeline:    pipeline,
		mono:        make([]float32, cfg.FramesPerBuffer),
		recorder:    &Recorder{},
	}
}

// Pipeline exposes the analysis pipeline (for gate control).
func (e *Engine) Pipeline() *Pipeline { return e.pipeline }

// Recorder returns the engine's WAV recorder.
func (e *Engine) Recorder() *Recorder { return e.recorder }

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.config.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.FramesPerBuffer,
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("start input stream: %w", err)
	}

	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
	}

	return nil
}

// Run starts the stream and blocks until ctx is cancelled, then stops it.
// PortAudio drives the callback from its own thread in between.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.StartInputStream(); err != nil {
		return err
	}
	<-ctx.Done()
	return e.Close()
}

// processInputStream is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.process(in)
}

func (e *Engine) process(in []float32) {
	n := copy(e.inputBuffer, in)
	buf := e.inputBuffer[:n]

	frames := Downmix(e.mono, buf, e.config.InputChannels)
	e.pipeline.Feed(e.mono[:frames])

	e.recorder.write(buf)
}

// StartRecording records the raw interleaved input to a WAV file.
func (e *Engine) StartRecording(filename string, bitDepth int) error {
	return e.recorder.Start(filename, int(e.config.SampleRate), e.config.InputChannels, bitDepth, len(e.inputBuffer))
}

// StopRecording finalises the WAV header. It is a no-op when not recording.
func (e *Engine) StopRecording() error {
	return e.recorder.Stop()
}

func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		return err
	}

	if err := e.StopInputStream(); err != nil {
		return err
	}

	return nil
}
