package utils

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV16 writes interleaved 16-bit PCM samples to path.
func WriteWAV16(path string, sampleRate, channels int, samples []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav fixture: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav fixture: %w", err)
	}
	return enc.Close()
}
