// Package sink carries synthesized PCM out of the pipeline: to in-process
// stream consumers, to the bus, or to the local audio device.
package sink

// StreamWriter receives synthesized PCM chunks in playback order. Close marks
// the end of the session's audio; repeated Close calls are harmless.
type StreamWriter interface {
	Write(pcm []byte) error
	Close() error
}
