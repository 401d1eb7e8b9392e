package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// framesPerBuffer is the chunk size written to the output stream.
const framesPerBuffer = 1024

// PlaybackError means a decoded clip could not be emitted to the output
// device. It is surfaced once; there is no retry.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string { return fmt.Sprintf("audio playback: %v", e.Err) }
func (e *PlaybackError) Unwrap() error { return e.Err }

// outStream is the slice of the portaudio stream API the player uses.
type outStream interface {
	Start() error
	Write() error
	Stop() error
	Close() error
}

// openStreamFunc opens an output stream that plays from buf on each Write.
type openStreamFunc func(channels, sampleRate int, buf []float32) (outStream, error)

// Player emits decoded clips to the host's default output device.
//
// Play is fire-and-forget: emission runs in its own goroutine and no
// completion signal is consumed by the rest of the system. Failures are
// reported once through the error callback as a PlaybackError.
type Player struct {
	open  openStreamFunc
	onErr func(error)
	wg    sync.WaitGroup
}

// NewPlayer creates a portaudio-backed player. The error callback may be
// nil, in which case failures are only logged.
func NewPlayer(onErr func(error)) (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &PlaybackError{Err: err}
	}
	return &Player{open: openPortaudio, onErr: onErr}, nil
}

func openPortaudio(channels, sampleRate int, buf []float32) (outStream, error) {
	return portaudio.OpenDefaultStream(0, channels, float64(sampleRate), len(buf)/channels, buf)
}

// Play emits the clip once and returns immediately.
func (p *Player) Play(clip Clip) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.emit(clip); err != nil {
			perr := &PlaybackError{Err: err}
			slog.Error("playback failed", "error", perr, "duration", clip.Duration())
			if p.onErr != nil {
				p.onErr(perr)
			}
		}
	}()
}

// emit writes the clip to a freshly opened stream in fixed-size chunks.
// The final short chunk is zero-padded.
func (p *Player) emit(clip Clip) error {
	if len(clip.Samples) == 0 {
		return nil
	}

	buf := make([]float32, framesPerBuffer*clip.Channels)
	stream, err := p.open(clip.Channels, clip.SampleRate, buf)
	if err != nil {
		return fmt.Errorf("opening output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(clip.Samples); off += len(buf) {
		n := copy(buf, clip.Samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("writing to output stream: %w", err)
		}
	}
	return nil
}

// Close waits for in-flight playback and releases the audio subsystem.
func (p *Player) Close() error {
	p.wg.Wait()
	return portaudio.Terminate()
}
