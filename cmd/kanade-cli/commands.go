package main

import (
	"fmt"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

type commandKind int

const (
	cmdSay commandKind = iota
	cmdLoad
	cmdUnload
	cmdSpeaker
	cmdPrompt
	cmdList
	cmdStop
	cmdHelp
	cmdQuit
)

// command is one parsed REPL line. Bare text is a say command; everything
// else starts with a slash.
type command struct {
	kind commandKind
	args []string

	// say options
	text     string
	savePath string
	noPlay   bool
}

var commandNames = map[string]commandKind{
	"say":     cmdSay,
	"load":    cmdLoad,
	"unload":  cmdUnload,
	"speaker": cmdSpeaker,
	"prompt":  cmdPrompt,
	"list":    cmdList,
	"stop":    cmdStop,
	"help":    cmdHelp,
	"quit":    cmdQuit,
	"exit":    cmdQuit,
}

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, fmt.Errorf("empty input")
	}

	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSay, text: line}, nil
	}

	fields, err := shellwords.Parse(strings.TrimPrefix(line, "/"))
	if err != nil {
		return command{}, fmt.Errorf("parse command: %w", err)
	}
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}

	kind, ok := commandNames[strings.ToLower(fields[0])]
	if !ok {
		return command{}, fmt.Errorf("unknown command /%s, try /help", fields[0])
	}

	cmd := command{kind: kind, args: fields[1:]}
	if kind == cmdSay {
		return parseSayArgs(cmd)
	}
	return cmd, nil
}

// parseSayArgs handles /say [-o path] [--no-play] text...
func parseSayArgs(cmd command) (command, error) {
	var words []string
	args := cmd.args
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o", "--output":
			if i+1 >= len(args) {
				return command{}, fmt.Errorf("%s needs a file path", args[i])
			}
			i++
			cmd.savePath = args[i]
		case "--no-play":
			cmd.noPlay = true
		default:
			words = append(words, args[i])
		}
	}
	if len(words) == 0 {
		return command{}, fmt.Errorf("nothing to say")
	}
	cmd.text = strings.Join(words, " ")
	cmd.args = nil
	return cmd, nil
}

const helpText = `Commands:
  /load <name> [model_dir]    load a character (model_dir remembered per name)
  /unload <name>              unload a character
  /speaker <audio_path>       set reference audio for the current character
  /prompt <transcript>        set the reference transcript
  /say [-o out.wav] [--no-play] <text>
                              synthesize text (bare text works too)
  /list                       list loaded characters
  /stop                       stop the current utterance
  /help                       show this help
  /quit                       exit`
