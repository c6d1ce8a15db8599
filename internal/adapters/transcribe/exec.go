package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattn/go-shellwords"

	"github.com/okian/bandscore/internal/domain/model"
)

// Exec runs an external transcription command, such as a WhisperX wrapper.
// The command receives --audio <file> (and --language <code>) and must print
// a verbose JSON transcript on stdout.
type Exec struct {
	cmd      []string
	language string
	tmpDir   string
}

// ExecOption configures the Exec backend.
type ExecOption func(*Exec)

// WithExecLanguage passes --language to the command.
func WithExecLanguage(lang string) ExecOption {
	return func(e *Exec) { e.language = lang }
}

// WithTempDir sets where audio is staged for the command.
func WithTempDir(dir string) ExecOption {
	return func(e *Exec) { e.tmpDir = dir }
}

// NewExec parses command with shell quoting rules.
func NewExec(command string, opts ...ExecOption) (*Exec, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse transcription command: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	e := &Exec{cmd: args, tmpDir: os.TempDir()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Transcribe implements pipeline.Transcriber.
func (e *Exec) Transcribe(ctx context.Context, audio []byte, filename string) (model.Transcript, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".wav"
	}
	file, err := os.CreateTemp(e.tmpDir, "bandscore_*"+ext)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := file.Write(audio); err != nil {
		file.Close()
		return model.Transcript{}, fmt.Errorf("stage audio: %w", err)
	}
	if err := file.Close(); err != nil {
		return model.Transcript{}, fmt.Errorf("stage audio: %w", err)
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if e.language != "" {
		args = append(args, "--language", e.language)
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return model.Transcript{}, ctx.Err()
		}
		return model.Transcript{}, fmt.Errorf("transcription command failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	var v verboseResult
	if err := json.Unmarshal(stdout.Bytes(), &v); err != nil {
		return model.Transcript{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v.transcript(), nil
}
