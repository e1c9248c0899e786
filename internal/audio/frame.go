// Package audio provides the PCM frame type shared by the synthesis pipeline
// and its sinks, plus WAV persistence helpers.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// DefaultSampleRate matches the vocoder output rate.
	DefaultSampleRate = 32000
	// DefaultChannels is mono output.
	DefaultChannels = 1
	// BytesPerSample is fixed 16-bit little-endian PCM.
	BytesPerSample = 2
)

// Frame holds the audio produced by one synthesis call. PCM is little-endian
// 16-bit; a frame is immutable once handed to the sink fan-out.
type Frame struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Samples returns the number of PCM samples in the frame.
func (f *Frame) Samples() int {
	if f == nil {
		return 0
	}
	return len(f.PCM) / BytesPerSample
}

// Duration returns the playback duration of the frame.
func (f *Frame) Duration() time.Duration {
	if f == nil || f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := f.Samples() / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Empty reports whether the frame carries no audio content.
func (f *Frame) Empty() bool {
	return f == nil || len(f.PCM) == 0
}

// Concat joins frames in order into a single frame. Sample rate and channel
// count are taken from the first non-empty frame.
func Concat(frames []*Frame) *Frame {
	out := &Frame{SampleRate: DefaultSampleRate, Channels: DefaultChannels}
	total := 0
	for _, f := range frames {
		if f != nil {
			total += len(f.PCM)
		}
	}
	out.PCM = make([]byte, 0, total)
	first := true
	for _, f := range frames {
		if f.Empty() {
			continue
		}
		if first {
			out.SampleRate = f.SampleRate
			out.Channels = f.Channels
			first = false
		}
		out.PCM = append(out.PCM, f.PCM...)
	}
	return out
}

// Tone generates a sine tone frame, used by the mock synthesizer and tests.
func Tone(freq float64, dur time.Duration, sampleRate int) *Frame {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	samples := int(float64(sampleRate) * dur.Seconds())
	pcm := make([]byte, samples*BytesPerSample)
	for i := 0; i < samples; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		s := int16(v * 0.3 * math.MaxInt16)
		binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(s))
	}
	return &Frame{PCM: pcm, SampleRate: sampleRate, Channels: DefaultChannels}
}
