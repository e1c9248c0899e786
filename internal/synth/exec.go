package synth

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/kanade-ai/kanade-tts/internal/audio"
)

type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text           string `json:"text"`
	Voice          string `json:"voice"`
	ModelDir       string `json:"model_dir"`
	ReferenceAudio string `json:"reference_audio"`
	ReferenceText  string `json:"reference_text"`
	SampleRate     int    `json:"sample_rate"`
	Channels       int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecSynth runs an external synthesis process per unit: a JSON request on
// stdin, newline-delimited JSON chunks with base64 PCM on stdout. The process
// is killed when ctx is cancelled.
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Name() string { return "exec" }

func (e *execSynth) Synthesize(ctx context.Context, req Request) (*audio.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := execRequest{
		Text:           req.Text,
		Voice:          req.Voice,
		ReferenceAudio: req.ReferenceAudio,
		ReferenceText:  req.ReferenceText,
		SampleRate:     req.SampleRate,
		Channels:       req.Channels,
	}
	if req.Model != nil {
		payload.ModelDir = req.Model.Name()
		if h, ok := req.Model.(interface{ ModelDir() string }); ok {
			payload.ModelDir = h.ModelDir()
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	if _, err := stdin.Write(data); err != nil {
		cmd.Wait()
		return nil, err
	}
	stdin.Close()

	var pcm []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return nil, fmt.Errorf("decode synth response: %w", err)
		}
		chunk, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			cmd.Wait()
			return nil, fmt.Errorf("decode synth pcm: %w", err)
		}
		pcm = append(pcm, chunk...)
		if resp.Final {
			break
		}
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("synth command failed: %w", err)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	return &audio.Frame{PCM: pcm, SampleRate: req.SampleRate, Channels: req.Channels}, nil
}
