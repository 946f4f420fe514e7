// Package audio converts synthesized mp3 audio into the wav format the PBX
// greeting upload endpoint requires.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Greeting uploads must be 8 kHz, mono, 16-bit PCM.
const (
	sampleRate = "8000"
	channels   = "1"
	bitDepth   = "16"
)

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command, folding stderr into the returned error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited %d: %s", name, exitErr.ExitCode(), bytes.TrimSpace(stderr.Bytes()))
		}
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}

// Converter shells out to sox for format conversion.
type Converter struct {
	runner  Runner
	soxPath string
}

// NewConverter builds a converter using the sox binary at soxPath.
func NewConverter(soxPath string) *Converter {
	return &Converter{runner: ExecRunner{}, soxPath: soxPath}
}

// NewConverterWithRunner is used by tests to substitute the process runner.
func NewConverterWithRunner(soxPath string, runner Runner) *Converter {
	return &Converter{runner: runner, soxPath: soxPath}
}

// ToTelephonyWav converts the mp3 at srcPath to an 8 kHz mono 16-bit wav
// at destPath.
func (c *Converter) ToTelephonyWav(ctx context.Context, srcPath, destPath string) error {
	err := c.runner.Run(ctx, c.soxPath,
		srcPath,
		"-r", sampleRate,
		"-c", channels,
		"-b", bitDepth,
		destPath,
	)
	if err != nil {
		return fmt.Errorf("converting %s to wav: %w", srcPath, err)
	}
	return nil
}
