// Package capture manages the microphone as a scoped resource for
// pronunciation voice notes.
//
// At most one stream is active at a time. Stop releases the stream and is
// idempotent under repeated invocation, so every exit path from a capture
// interaction (completed capture, user cancel, daemon shutdown) can call it
// unconditionally.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// framesPerBuffer is the read chunk size.
const framesPerBuffer = 1024

// CaptureError means the input device could not be acquired or read.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("capture: %v", e.Err) }
func (e *CaptureError) Unwrap() error { return e.Err }

// inStream is the slice of the portaudio stream API the recorder uses.
type inStream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

// openStreamFunc opens an input stream that fills buf on each Read.
type openStreamFunc func(sampleRate int, buf []float32) (inStream, error)

// Recorder captures mono float32 samples from the default input device.
type Recorder struct {
	sampleRate int
	maxSamples int
	open       openStreamFunc

	mu      sync.Mutex
	stream  inStream
	buffer  []float32
	samples []float32
	running bool
	done    chan struct{}
}

// NewRecorder creates a portaudio-backed recorder. maxSeconds caps the
// recording length of one session.
func NewRecorder(sampleRate, maxSeconds int) (*Recorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &CaptureError{Err: err}
	}
	return &Recorder{
		sampleRate: sampleRate,
		maxSamples: sampleRate * maxSeconds,
		open:       openPortaudio,
		buffer:     make([]float32, framesPerBuffer),
	}, nil
}

func openPortaudio(sampleRate int, buf []float32) (inStream, error) {
	return portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
}

// Start begins capturing. Starting an already-active recorder is a no-op.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	stream, err := r.open(r.sampleRate, r.buffer)
	if err != nil {
		return &CaptureError{Err: err}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return &CaptureError{Err: err}
	}

	r.stream = stream
	r.samples = make([]float32, 0, r.sampleRate)
	r.running = true
	r.done = make(chan struct{})

	go r.recordLoop()
	return nil
}

func (r *Recorder) recordLoop() {
	defer close(r.done)

	for {
		r.mu.Lock()
		if !r.running {
			r.mu.Unlock()
			return
		}
		stream := r.stream
		r.mu.Unlock()

		if err := stream.Read(); err != nil {
			r.mu.Lock()
			running := r.running
			r.mu.Unlock()
			if !running {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		r.mu.Lock()
		if r.running && len(r.samples) < r.maxSamples {
			r.samples = append(r.samples, r.buffer...)
		}
		full := len(r.samples) >= r.maxSamples
		r.mu.Unlock()

		if full {
			return
		}
	}
}

// Stop releases the stream and returns the captured samples. Stopping an
// inactive recorder is a no-op returning nil; repeated invocation leaves no
// dangling stream.
func (r *Recorder) Stop() []float32 {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}

	r.running = false
	stream := r.stream
	r.stream = nil
	samples := r.samples
	r.samples = nil
	done := r.done
	r.mu.Unlock()

	// Wait briefly for the read loop to notice; it checks running between
	// blocking reads.
	if done != nil {
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	if stream != nil {
		stream.Stop()
		stream.Close()
	}

	if len(samples) > r.maxSamples {
		samples = samples[:r.maxSamples]
	}
	return samples
}

// Active reports whether a capture stream is currently open.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// SampleRate returns the configured capture rate.
func (r *Recorder) SampleRate() int { return r.sampleRate }

// Close stops any active capture and releases the audio subsystem.
func (r *Recorder) Close() error {
	r.Stop()
	return portaudio.Terminate()
}
