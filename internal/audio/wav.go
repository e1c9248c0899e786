package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes a frame to path as a 16-bit PCM wave file, creating parent
// directories and overwriting any existing file.
func WriteWAV(path string, frame *Frame) error {
	if frame == nil {
		return fmt.Errorf("nil frame")
	}
	if len(frame.PCM)%BytesPerSample != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer file.Close()

	buffer := &gaudio.IntBuffer{Format: &gaudio.Format{NumChannels: frame.Channels, SampleRate: frame.SampleRate}}
	samples := make([]int, frame.Samples())
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(frame.PCM[i*BytesPerSample:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, frame.SampleRate, 16, frame.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// ReadWAV loads a 16-bit PCM wave file back into a frame. Used to verify
// saved sessions and to sanity check reference audio.
func ReadWAV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav file: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}

	pcm := make([]byte, len(buf.Data)*BytesPerSample)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(int16(s)))
	}
	return &Frame{
		PCM:        pcm,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

// StreamHeader returns a wave header for an HTTP response whose total length
// is not known up front. The chunk sizes are set to the maximum so decoders
// read PCM until the stream ends.
func StreamHeader(sampleRate, channels int) []byte {
	const unknown = 0xFFFFFFFF
	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	h := make([]byte, 0, 44)
	h = append(h, "RIFF"...)
	h = binary.LittleEndian.AppendUint32(h, unknown)
	h = append(h, "WAVE"...)
	h = append(h, "fmt "...)
	h = binary.LittleEndian.AppendUint32(h, 16)
	h = binary.LittleEndian.AppendUint16(h, 1) // PCM
	h = binary.LittleEndian.AppendUint16(h, uint16(channels))
	h = binary.LittleEndian.AppendUint32(h, uint32(sampleRate))
	h = binary.LittleEndian.AppendUint32(h, uint32(byteRate))
	h = binary.LittleEndian.AppendUint16(h, uint16(blockAlign))
	h = binary.LittleEndian.AppendUint16(h, 16) // bits per sample
	h = append(h, "data"...)
	h = binary.LittleEndian.AppendUint32(h, unknown)
	return h
}
