package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Sink receives the interleaved samples of each playback chunk. The
// PortAudio monitor implements it.
type Sink interface {
	Write(interleaved []float32) error
	Close() error
}

// PlayerOptions configures file playback.
type PlayerOptions struct {
	// ChunkFrames is the number of frames processed per iteration. Each
	// iteration is paced to ChunkFrames/SampleRate of wall time.
	ChunkFrames int
	// Loop reopens the file when it ends.
	Loop bool
	// Reopen is called to restart a looping source. Nil disables looping.
	Reopen func() (Source, error)
	// Monitor, when set, also plays every chunk.
	Monitor Sink
}

// Player drives the analysis pipeline from a pre-recorded Source at real
// time pace.
type Player struct {
	src      Source
	pipeline *Pipeline
	opts     PlayerOptions

	interleaved []float32
	mono        []float32

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPlayer pre-allocates one chunk of interleaved and mono samples.
func NewPlayer(src Source, pipeline *Pipeline, opts PlayerOptions) (*Player, error) {
	if opts.ChunkFrames <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkFrames)
	}
	if src.SampleRate() <= 0 || src.Channels() <= 0 {
		return nil, fmt.Errorf("%w: %d ch @ %d Hz", ErrInvalidFile, src.Channels(), src.SampleRate())
	}
	return &Player{
		src:         src,
		pipeline:    pipeline,
		opts:        opts,
		interleaved: make([]float32, opts.ChunkFrames*src.Channels()),
		mono:        make([]float32, opts.ChunkFrames),
		now:         time.Now,
		sleep:       sleepContext,
	}, nil
}

// ChunkDuration is the nominal wall time of one chunk.
func (p *Player) ChunkDuration() time.Duration {
	return time.Duration(p.opts.ChunkFrames) * time.Second / time.Duration(p.src.SampleRate())
}

// Run plays the source until it ends (without Loop), a read fails or ctx is
// cancelled. A final chunk shorter than ChunkFrames is not analysed. With
// Loop, a pass that yields no full chunk fails with ErrShortSource. The
// source is closed on return.
func (p *Player) Run(ctx context.Context) error {
	defer func() {
		if p.src != nil {
			p.src.Close()
		}
		if p.opts.Monitor != nil {
			p.opts.Monitor.Close()
		}
	}()

	target := p.ChunkDuration()
	logger.Infof("playing %d ch @ %d Hz in %s chunks", p.src.Channels(), p.src.SampleRate(), target)

	// full chunks read since the source was last opened
	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		start := p.now()

		n, err := readFull(p.src, p.interleaved)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read audio: %w", err)
		}
		if n < len(p.interleaved) {
			if !p.opts.Loop || p.opts.Reopen == nil {
				logger.Infof("playback finished")
				return nil
			}
			if chunks == 0 {
				return fmt.Errorf("%w: %d frames per chunk", ErrShortSource, p.opts.ChunkFrames)
			}
			if err := p.restart(); err != nil {
				return err
			}
			chunks = 0
			if err := p.sleep(ctx, Pace(target, p.now().Sub(start))); err != nil {
				return nil
			}
			continue
		}
		chunks++

		frames := Downmix(p.mono, p.interleaved, p.src.Channels())
		p.pipeline.Feed(p.mono[:frames])

		if p.opts.Monitor != nil {
			if err := p.opts.Monitor.Write(p.interleaved); err != nil {
				logger.Warnf("monitor write: %v", err)
			}
		}

		if err := p.sleep(ctx, Pace(target, p.now().Sub(start))); err != nil {
			return nil
		}
	}
}

func (p *Player) restart() error {
	p.src.Close()
	p.src = nil
	src, err := p.opts.Reopen()
	if err != nil {
		return fmt.Errorf("reopen audio: %w", err)
	}
	if src.Channels() != len(p.interleaved)/p.opts.ChunkFrames {
		src.Close()
		return fmt.Errorf("reopened source changed channel count to %d", src.Channels())
	}
	p.src = src
	p.pipeline.Reset()
	logger.Debugf("looping playback")
	return nil
}

// Pace returns how long to sleep so one iteration takes target. It is never
// negative: an iteration that overran is not made up for.
func Pace(target, elapsed time.Duration) time.Duration {
	if elapsed >= target {
		return 0
	}
	return target - elapsed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
