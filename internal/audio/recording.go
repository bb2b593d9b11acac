package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrAlreadyRecording is returned by Start while a recording is open.
var ErrAlreadyRecording = errors.New("already recording")

// Recorder writes float input to a PCM WAV file. Start and Stop may be
// called from any goroutine while the audio callback writes.
type Recorder struct {
	isRecording atomic.Bool // Fast path check for the callback

	mu         sync.Mutex
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion
	scale      float64
}

// Start opens filename and prepares a conversion buffer for chunks of up to
// maxSamples interleaved samples. bitDepth is 16 or 24.
func (r *Recorder) Start(filename string, sampleRate, channels, bitDepth, maxSamples int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRecording.Load() {
		return ErrAlreadyRecording
	}
	if bitDepth != 16 && bitDepth != 24 {
		return fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.outputFile = file

	r.wavEncoder = wav.NewEncoder(file, sampleRate, bitDepth, channels, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, maxSamples),
		SourceBitDepth: bitDepth,
	}
	r.scale = float64(int(1)<<(bitDepth-1) - 1)

	r.isRecording.Store(true)
	logger.Infof("recording to %s (%d-bit, %d ch @ %d Hz)", filename, bitDepth, channels, sampleRate)

	return nil
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool { return r.isRecording.Load() }

// write converts and encodes one chunk. Errors are logged; a failing disk
// must not stall the callback.
func (r *Recorder) write(samples []float32) {
	if !r.isRecording.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return
	}

	n := min(len(samples), cap(r.sampleBuf.Data))
	r.sampleBuf.Data = r.sampleBuf.Data[:n]
	for i, s := range samples[:n] {
		v := min(max(float64(s), -1), 1)
		r.sampleBuf.Data[i] = int(v * r.scale)
	}

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		logger.Errorf("writing to WAV file: %v", err)
	}
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRecording.Load() {
		return nil
	}
	r.isRecording.Store(false)

	var errs []error
	if r.wavEncoder != nil {
		errs = append(errs, r.wavEncoder.Close())
		r.wavEncoder = nil
	}
	if r.outputFile != nil {
		errs = append(errs, r.outputFile.Close())
		r.outputFile = nil
	}

	return errors.Join(errs...)
}

// RecordingPath returns a timestamped file name inside dir.
func RecordingPath(dir string, now time.Time) string {
	return filepath.Join(dir, "shaderviz-"+now.Format("20060102-150405")+".wav")
}
