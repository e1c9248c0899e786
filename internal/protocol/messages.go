package protocol

import "time"

// SpeakRequest asks the runtime to synthesize text for a character.
type SpeakRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Character string `json:"character"`
	Text      string `json:"text"`
	Play      bool   `json:"play"`
	SavePath  string `json:"save_path,omitempty"`
}

// AudioChunk carries synthesized PCM for one session on the bus. A chunk with
// Final set and no PCM marks the end of the session's audio.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SpeakStatus reports session completion on the bus.
type SpeakStatus struct {
	SessionID string    `json:"session_id"`
	Character string    `json:"character"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSpeak       = "tts.speak"
	SubjectAudioPrefix = "tts.audio"
	SubjectSpeakDone   = "tts.done"
)

// AudioSubject returns the per-session audio chunk subject.
func AudioSubject(sessionID string) string {
	return SubjectAudioPrefix + "." + sessionID
}
