package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var (
	// ErrUnsupportedFormat is returned for file extensions with no decoder.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidFile is returned when a file does not parse as its extension
	// claims.
	ErrInvalidFile = errors.New("invalid audio file")
	// ErrShortSource is returned when a looping source ends before one full
	// chunk could be read.
	ErrShortSource = errors.New("audio source shorter than one chunk")
)

// Source is a decoded PCM stream.
type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (e.g., 1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1] and
	// returns the number of values written. n == 0 with io.EOF ends the
	// stream.
	ReadSamples(dst []float32) (n int, err error)
	// Close releases any resources.
	Close() error
}

// OpenSource picks a decoder by file extension: .wav, .aif/.aiff, .mp3 or
// .ogg.
func OpenSource(path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav", ".wave", ".aif", ".aiff", ".mp3", ".ogg", ".oga":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var src Source
	switch ext {
	case ".wav", ".wave":
		src, err = newWAVSource(f)
	case ".aif", ".aiff":
		src, err = newAIFFSource(f)
	case ".mp3":
		src, err = newMP3Source(f)
	default:
		src, err = newOggSource(f)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return src, nil
}

// pcmDecoder is the shape shared by the go-audio wav and aiff decoders.
type pcmDecoder interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// intSource adapts a go-audio integer PCM decoder.
type intSource struct {
	closer     io.Closer
	dec        pcmDecoder
	sampleRate int
	channels   int
	scale      float32
	intBuf     *goaudio.IntBuffer
}

func newIntSource(c io.Closer, dec pcmDecoder, format *goaudio.Format, bitDepth int) (*intSource, error) {
	if format == nil || format.NumChannels < 1 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing format chunk", ErrInvalidFile)
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}
	return &intSource{
		closer:     c,
		dec:        dec,
		sampleRate: format.SampleRate,
		channels:   format.NumChannels,
		scale:      1 / float32(int64(1)<<(bitDepth-1)),
		intBuf:     &goaudio.IntBuffer{Format: format, Data: make([]int, 4096)},
	}, nil
}

func newWAVSource(f *os.File) (Source, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrInvalidFile)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return newIntSource(f, dec, dec.Format(), int(dec.BitDepth))
}

func newAIFFSource(f *os.File) (Source, error) {
	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not an AIFF file", ErrInvalidFile)
	}
	dec.ReadInfo()
	return newIntSource(f, dec, dec.Format(), int(dec.BitDepth))
}

func (s *intSource) SampleRate() int { return s.sampleRate }
func (s *intSource) Channels() int   { return s.channels }
func (s *intSource) Close() error    { return s.closer.Close() }

func (s *intSource) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if cap(s.intBuf.Data) < len(dst) {
		s.intBuf.Data = make([]int, len(dst))
	}
	s.intBuf.Data = s.intBuf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.intBuf)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	for i := range n {
		dst[i] = float32(s.intBuf.Data[i]) * s.scale
	}
	return n, err
}

// mp3Source: go-mp3 always decodes to 16-bit little-endian stereo.
type mp3Source struct {
	f   *os.File
	dec *gomp3.Decoder
	buf []byte
}

func newMP3Source(f *os.File) (Source, error) {
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return &mp3Source{f: f, dec: dec, buf: make([]byte, 8192)}, nil
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }
func (s *mp3Source) Channels() int   { return 2 }
func (s *mp3Source) Close() error    { return s.f.Close() }

func (s *mp3Source) ReadSamples(dst []float32) (int, error) {
	bytesNeeded := len(dst) * 2
	if cap(s.buf) < bytesNeeded {
		s.buf = make([]byte, bytesNeeded)
	}
	s.buf = s.buf[:bytesNeeded]

	n, err := io.ReadFull(s.dec, s.buf)
	samples := n / 2
	for i := range samples {
		v := int16(uint16(s.buf[2*i]) | uint16(s.buf[2*i+1])<<8)
		dst[i] = float32(v) / 32768.0
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	if samples > 0 && errors.Is(err, io.EOF) {
		// Hand back the tail now, report EOF on the next call.
		err = nil
	}
	return samples, err
}

type oggSource struct {
	f   *os.File
	dec *oggvorbis.Reader
}

func newOggSource(f *os.File) (Source, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return &oggSource{f: f, dec: dec}, nil
}

func (s *oggSource) SampleRate() int { return s.dec.SampleRate() }
func (s *oggSource) Channels() int   { return s.dec.Channels() }
func (s *oggSource) Close() error    { return s.f.Close() }

func (s *oggSource) ReadSamples(dst []float32) (int, error) {
	// Keep reads frame aligned.
	ch := s.dec.Channels()
	dst = dst[:len(dst)-len(dst)%ch]
	total := 0
	for total < len(dst) {
		n, err := s.dec.Read(dst[total:])
		total += n
		if err != nil {
			if total > 0 && errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// readFull fills dst from src until it is full or the stream ends.
func readFull(src Source, dst []float32) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := src.ReadSamples(dst[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}
