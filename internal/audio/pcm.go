// Package audio converts the provider's raw PCM16 speech into playable
// buffers and emits them to an output device.
//
// The decode path is deliberately dumb: little-endian signed 16-bit mono
// samples scaled to normalized float32 amplitudes. Containers (WAV) and
// device output are layered on top of the same Clip type.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ErrOddLength is returned by Decode for byte streams that do not divide
// into whole 16-bit samples. The provider always produces even-length
// audio; an odd length means the response body was truncated in flight,
// so the input is rejected rather than silently trimmed.
var ErrOddLength = fmt.Errorf("audio: pcm byte stream has odd length")

// bytesPerSample is the width of one PCM16 sample.
const bytesPerSample = 2

// Clip is a decoded audio buffer: normalized float samples in [-1.0, 1.0].
// A clip is consumed once by the player and then eligible for disposal.
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Decode converts raw little-endian signed 16-bit mono PCM into a Clip.
// Each output sample equals int16_sample / 32768. The conversion is pure
// and total over any even-length input; odd-length input is rejected with
// ErrOddLength.
func Decode(pcm []byte, sampleRate int) (Clip, error) {
	if len(pcm)%bytesPerSample != 0 {
		return Clip{}, ErrOddLength
	}

	samples := make([]float32, len(pcm)/bytesPerSample)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		samples[i] = float32(s) / 32768.0
	}

	return Clip{
		SampleRate: sampleRate,
		Channels:   1,
		Samples:    samples,
	}, nil
}

// Encode converts a Clip back to raw little-endian PCM16 bytes. Samples are
// scaled by 32768, rounded, and clamped to the int16 range, so a
// Decode/Encode roundtrip reproduces the original bytes.
func Encode(clip Clip) []byte {
	out := make([]byte, len(clip.Samples)*bytesPerSample)
	for i, v := range clip.Samples {
		s := math.Round(float64(v) * 32768.0)
		if s > math.MaxInt16 {
			s = math.MaxInt16
		}
		if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(int16(s)))
	}
	return out
}

// WAV wraps a clip's PCM16 rendering in a RIFF/WAVE container, the wire
// format handed to HTTP clients.
func WAV(clip Clip) []byte {
	return pcmToWAV(Encode(clip), clip.SampleRate, clip.Channels, bytesPerSample)
}

// pcmToWAV wraps raw PCM data in a WAV container.
func pcmToWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	dataLen := len(pcm)
	fileLen := 36 + dataLen // 44-byte header minus 8 bytes for RIFF header = 36

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	// RIFF header
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fileLen))
	buf.WriteString("WAVE")

	// fmt subchunk
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))         // subchunk1 size
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))          // audio format (PCM)
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))   // channels
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate)) // sample rate
	byteRate := sampleRate * channels * bytesPerSample
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate)) // byte rate
	blockAlign := channels * bytesPerSample
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))       // block align
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8)) // bits per sample

	// data subchunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}

// FromFloat32 builds a clip directly from normalized samples (capture path).
func FromFloat32(samples []float32, sampleRate int) Clip {
	return Clip{
		SampleRate: sampleRate,
		Channels:   1,
		Samples:    samples,
	}
}
