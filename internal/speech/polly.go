// Package speech synthesizes greeting audio via the AWS Polly service.
package speech

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
)

// defaultVoice is the Polly voice used for greetings.
const defaultVoice = pollytypes.VoiceIdEmma

// PollySynthesizer converts text to mp3 audio files.
type PollySynthesizer struct {
	client *polly.Client
	voice  pollytypes.VoiceId
}

// NewPolly builds a synthesizer with the default voice.
func NewPolly(cfg aws.Config) *PollySynthesizer {
	return &PollySynthesizer{
		client: polly.NewFromConfig(cfg),
		voice:  defaultVoice,
	}
}

// Synthesize renders text as mp3 audio at destPath.
func (p *PollySynthesizer) Synthesize(ctx context.Context, text, destPath string) error {
	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		OutputFormat: pollytypes.OutputFormatMp3,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      p.voice,
	})
	if err != nil {
		return fmt.Errorf("synthesizing speech: %w", err)
	}
	defer out.AudioStream.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	if _, err := io.Copy(f, out.AudioStream); err != nil {
		f.Close()
		os.Remove(destPath)
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("closing %s: %w", destPath, err)
	}
	return nil
}
