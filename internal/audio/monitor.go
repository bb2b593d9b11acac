package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Monitor plays playback chunks on an output device through a blocking
// PortAudio stream. Write blocks until the device has room, which also
// paces the player.
type Monitor struct {
	stream   *portaudio.Stream
	out      []float32
	frames   int
	channels int
}

var _ Sink = (*Monitor)(nil)

// OpenMonitor opens a blocking output stream sized for chunks of frames
// frames. PortAudio must be initialised.
func OpenMonitor(deviceID, channels int, sampleRate float64, frames int) (*Monitor, error) {
	dev, err := OutputDevice(deviceID)
	if err != nil {
		return nil, err
	}
	ch := min(channels, dev.MaxOutputChannels)

	m := &Monitor{out: make([]float32, frames*ch), frames: frames, channels: ch}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: ch,
			Latency:  dev.DefaultHighOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: frames,
	}
	stream, err := portaudio.OpenStream(params, &m.out)
	if err != nil {
		return nil, fmt.Errorf("open monitor stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start monitor stream: %w", err)
	}
	m.stream = stream
	logger.Infof("monitoring on %q (%d ch)", dev.Name, ch)
	return m, nil
}

// Write copies one chunk into the stream buffer, dropping channels the
// device lacks, and blocks until PortAudio accepts it.
func (m *Monitor) Write(interleaved []float32) error {
	inCh := max(len(interleaved)/m.frames, 1)
	outCh := m.channels
	for f := range m.frames {
		for c := range outCh {
			src := min(c, inCh-1)
			idx := f*inCh + src
			if idx < len(interleaved) {
				m.out[f*outCh+c] = interleaved[idx]
			} else {
				m.out[f*outCh+c] = 0
			}
		}
	}
	return m.stream.Write()
}

func (m *Monitor) Close() error {
	if m.stream == nil {
		return nil
	}
	err := m.stream.Stop()
	if cerr := m.stream.Close(); err == nil {
		err = cerr
	}
	m.stream = nil
	return err
}
