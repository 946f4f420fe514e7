// Package greeting toggles a call handler's alternate (out-of-office)
// greeting, optionally replacing its recorded audio with synthesized
// speech and redirecting the line while the greeting is active.
package greeting

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// PBX is the slice of the voicemail server API the flow needs.
type PBX interface {
	SetAlternateGreeting(ctx context.Context, callHandlerID string, enabled bool) ([]byte, error)
	UploadGreetingAudio(ctx context.Context, callHandlerID, locale, srcPath string) error
}

// Synthesizer renders text to an mp3 file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, destPath string) error
}

// Converter resamples synthesized audio into the telephony wav format the
// PBX accepts.
type Converter interface {
	ToTelephonyWav(ctx context.Context, srcPath, destPath string) error
}

// Forwarder toggles call forwarding on the companion phone line.
type Forwarder interface {
	SetForwarding(ctx context.Context, enabled bool) error
}

// Options configures a Flow.
type Options struct {
	PBX         PBX
	Synthesizer Synthesizer
	Converter   Converter
	// Forwarder is optional; nil disables the line redirect step.
	Forwarder Forwarder

	// SpoolDir holds the synthesized audio while it is converted and
	// uploaded.
	SpoolDir string
	// Locale selects the greeting stream the audio is written to, as a
	// Windows LCID string such as "1033".
	Locale string
}

// Flow orchestrates one greeting toggle.
type Flow struct {
	pbx   PBX
	synth Synthesizer
	conv  Converter
	fwd   Forwarder

	spoolDir string
	locale   string
}

// New builds a Flow from opts.
func New(opts Options) *Flow {
	return &Flow{
		pbx:      opts.PBX,
		synth:    opts.Synthesizer,
		conv:     opts.Converter,
		fwd:      opts.Forwarder,
		spoolDir: opts.SpoolDir,
		locale:   opts.Locale,
	}
}

// Toggle enables or disables the alternate greeting on callHandlerID and
// returns the PBX response body for the caller to relay. When enabling
// with a non-empty message, the message is synthesized, resampled and
// uploaded as the greeting audio before the call returns.
func (f *Flow) Toggle(ctx context.Context, callHandlerID string, enable bool, message string) ([]byte, error) {
	log := slog.With("call_handler", callHandlerID, "enable", enable)

	body, err := f.pbx.SetAlternateGreeting(ctx, callHandlerID, enable)
	if err != nil {
		return nil, fmt.Errorf("setting alternate greeting: %w", err)
	}
	log.Info("alternate greeting toggled")

	if enable && message != "" {
		if err := f.replaceAudio(ctx, callHandlerID, message); err != nil {
			return nil, err
		}
		log.Info("greeting audio replaced")
	}

	if f.fwd != nil {
		if err := f.fwd.SetForwarding(ctx, enable); err != nil {
			return nil, fmt.Errorf("updating call forwarding: %w", err)
		}
		log.Info("call forwarding updated")
	}

	return body, nil
}

// replaceAudio synthesizes message and uploads it as the alternate
// greeting recording. Scratch files are removed before returning, on
// every path.
func (f *Flow) replaceAudio(ctx context.Context, callHandlerID, message string) error {
	mp3Path := filepath.Join(f.spoolDir, callHandlerID+".mp3")
	wavPath := filepath.Join(f.spoolDir, callHandlerID+".wav")
	defer removeScratch(mp3Path, wavPath)

	if err := f.synth.Synthesize(ctx, message, mp3Path); err != nil {
		return fmt.Errorf("synthesizing greeting: %w", err)
	}
	if err := f.conv.ToTelephonyWav(ctx, mp3Path, wavPath); err != nil {
		return fmt.Errorf("converting greeting audio: %w", err)
	}
	if err := f.pbx.UploadGreetingAudio(ctx, callHandlerID, f.locale, wavPath); err != nil {
		return fmt.Errorf("uploading greeting audio: %w", err)
	}
	return nil
}

func removeScratch(paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove scratch audio", "path", path, "error", err)
		}
	}
}
