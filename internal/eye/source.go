package eye

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"shaderviz/internal/log"
)

var logger = log.New("eye")

// ErrNoFrame is returned by a FrameSource that has no more frames.
var ErrNoFrame = errors.New("no frame available")

// FrameSource yields camera frames. Frame blocks until one is available.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// FFmpegOptions selects the capture device.
type FFmpegOptions struct {
	// Device is the input URL or device node, e.g. /dev/video0.
	Device string
	// Format is the ffmpeg input format (v4l2, avfoundation, dshow). Empty
	// lets ffmpeg probe.
	Format string
	Width  int
	Height int
	// FFmpegPath overrides the ffmpeg binary.
	FFmpegPath string
}

// rawSource decodes packed rgb24 frames from a byte stream.
type rawSource struct {
	r      io.ReadCloser
	width  int
	height int
	buf    []byte

	closeOnce sync.Once
	stop      func() error
}

// NewFFmpegSource starts ffmpeg capturing opts.Device and scaling to
// Width x Height rgb24 frames on a pipe.
func NewFFmpegSource(opts FFmpegOptions) (FrameSource, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid capture size %dx%d", opts.Width, opts.Height)
	}

	pr, pw := io.Pipe()
	cmd := ffmpegCommand(opts, pw)
	if err := cmd.Start(); err != nil {
		pr.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	logger.Infof("capturing %s at %dx%d", opts.Device, opts.Width, opts.Height)

	done := make(chan struct{})
	go func() {
		err := cmd.Wait()
		if err != nil {
			logger.Debugf("ffmpeg exited: %v", err)
		}
		pw.CloseWithError(io.EOF)
		close(done)
	}()

	src := newRawSource(pr, opts.Width, opts.Height)
	src.stop = func() error {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-done
		return nil
	}
	return src, nil
}

func ffmpegCommand(opts FFmpegOptions, out io.Writer) *exec.Cmd {
	in := ffmpeg.KwArgs{}
	if opts.Format != "" {
		in["f"] = opts.Format
	}
	size := strconv.Itoa(opts.Width) + "x" + strconv.Itoa(opts.Height)

	stream := ffmpeg.Input(opts.Device, in).
		Output("pipe:", ffmpeg.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": "rgb24",
			"s":       size,
		}).
		WithOutput(out)
	if opts.FFmpegPath != "" {
		stream.SetFfmpegPath(opts.FFmpegPath)
	}
	return stream.Compile()
}

func newRawSource(r io.ReadCloser, width, height int) *rawSource {
	return &rawSource{r: r, width: width, height: height, buf: make([]byte, width*height*3)}
}

// Frame reads one frame. A fresh image is returned each call since the
// caller may keep it.
func (s *rawSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
			return nil, ErrNoFrame
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for i, j := 0, 0; i < len(s.buf); i, j = i+3, j+4 {
		img.Pix[j] = s.buf[i]
		img.Pix[j+1] = s.buf[i+1]
		img.Pix[j+2] = s.buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

func (s *rawSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.r.Close()
		if s.stop != nil {
			err = errors.Join(err, s.stop())
		}
	})
	return err
}

// ImageSequence serves decoded still images in order, for replaying
// captured frames without a camera.
type ImageSequence struct {
	frames []image.Image
	next   int
	loop   bool
}

// NewImageSequence decodes every path up front. Supported formats are png,
// jpeg, bmp and tiff.
func NewImageSequence(paths []string, loop bool) (*ImageSequence, error) {
	if len(paths) == 0 {
		return nil, errors.New("image sequence is empty")
	}
	seq := &ImageSequence{loop: loop}
	for _, p := range paths {
		img, err := decodeFile(p)
		if err != nil {
			return nil, err
		}
		seq.frames = append(seq.frames, img)
	}
	return seq, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (s *ImageSequence) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.frames) {
		if !s.loop {
			return nil, ErrNoFrame
		}
		s.next = 0
	}
	img := s.frames[s.next]
	s.next++
	return img, nil
}

func (s *ImageSequence) Close() error { return nil }

// LoadTemplate decodes a template image for DetectorOptions.Template.
func LoadTemplate(path string) (image.Image, error) {
	return decodeFile(path)
}
