// Package pipeline processes one voicemail notification end to end:
// dedup claim, user resolution, audio download, scratch upload,
// transcription with bounded polling, transcript delivery, and cleanup.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/karmatek/vmrelay/internal/dedup"
	"github.com/karmatek/vmrelay/internal/transcription"
)

// Messages is the PBX side of the pipeline: alias resolution and voice
// message download.
type Messages interface {
	UserObjectID(ctx context.Context, alias string) (string, error)
	DownloadMessage(ctx context.Context, messageID, userObjectID, destPath string) error
}

// Objects is the scratch object store shared with the transcription
// service.
type Objects interface {
	Upload(ctx context.Context, key, srcPath string) error
	Fetch(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	MediaURI(key string) string
}

// Transcriber starts and tracks asynchronous transcription jobs.
type Transcriber interface {
	Start(ctx context.Context, jobName, mediaURI string) error
	Status(ctx context.Context, jobName string) (transcription.Status, error)
	Delete(ctx context.Context, jobName string) error
}

// Notifier delivers the finished transcript.
type Notifier interface {
	Post(ctx context.Context, text string) error
}

// Sentinel errors for the two distinct transcription failure modes.
var (
	ErrTranscriptionFailed = errors.New("transcription job failed")
	ErrPollTimeout         = errors.New("transcription poll timed out")
)

// Options configures a Pipeline.
type Options struct {
	Messages    Messages
	Objects     Objects
	Transcriber Transcriber
	Notifier    Notifier
	Dedup       dedup.Store

	// SpoolDir holds downloaded audio and the final archive files.
	SpoolDir string
	// PollInterval is the delay between transcription status polls.
	PollInterval time.Duration
	// PollTimeout caps the total wait for one transcription job.
	PollTimeout time.Duration
}

// Pipeline runs jobs sequentially per call; concurrent Process calls for
// different messages are independent, sharing only the dedup store.
type Pipeline struct {
	messages    Messages
	objects     Objects
	transcriber Transcriber
	notifier    Notifier
	dedup       dedup.Store

	spoolDir     string
	pollInterval time.Duration
	pollTimeout  time.Duration

	// Clock seams for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Pipeline from opts.
func New(opts Options) *Pipeline {
	return &Pipeline{
		messages:     opts.Messages,
		objects:      opts.Objects,
		transcriber:  opts.Transcriber,
		notifier:     opts.Notifier,
		dedup:        opts.Dedup,
		spoolDir:     opts.SpoolDir,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Process runs all stages for one job. The webhook has already been
// acknowledged when this runs, so errors are logged here and returned only
// for callers (and tests) that want them; nothing propagates to the PBX.
func (p *Pipeline) Process(ctx context.Context, job Job) error {
	log := slog.With(
		"alias", job.Alias,
		"message_id", job.MessageID,
		"caller_ani", job.CallerANI,
	)

	// Claim before any external call so a near-simultaneous duplicate
	// delivery observes the updated set.
	fresh, err := p.dedup.Claim(job.MessageID)
	if err != nil {
		return p.fail(log, "dedup", err)
	}
	if !fresh {
		log.Info("duplicate notification ignored")
		return nil
	}

	log.Info("processing voicemail notification", "display_name", job.DisplayName)

	job.UserObjectID, err = p.messages.UserObjectID(ctx, job.Alias)
	if err != nil {
		return p.fail(log, "resolve_user", err)
	}

	job.LocalPath = filepath.Join(p.spoolDir, job.MessageID+".wav")
	if err := p.messages.DownloadMessage(ctx, job.MessageID, job.UserObjectID, job.LocalPath); err != nil {
		return p.fail(log, "download", err)
	}

	// The local wav is either archived at the end or removed on abort;
	// no exit path may leave the raw download behind.
	archived := false
	defer func() {
		if !archived {
			if err := os.Remove(job.LocalPath); err != nil && !os.IsNotExist(err) {
				log.Warn("failed to remove local audio", "path", job.LocalPath, "error", err)
			}
		}
	}()

	job.RemoteKey = job.MessageID + ".wav"
	if err := p.objects.Upload(ctx, job.RemoteKey, job.LocalPath); err != nil {
		return p.fail(log, "upload", err)
	}

	// The transcription job is named after the audio key, so the service
	// writes its result document to "<key>.json" in the same bucket.
	if err := p.transcriber.Start(ctx, job.RemoteKey, p.objects.MediaURI(job.RemoteKey)); err != nil {
		p.deleteObject(ctx, log, job.RemoteKey)
		return p.fail(log, "transcribe_start", err)
	}

	status, waitErr := p.waitForJob(ctx, job.RemoteKey)

	// The job record and the uploaded audio are scratch resources:
	// remove them whether transcription succeeded, failed or timed out.
	p.cleanupRemote(ctx, log, job.RemoteKey)

	if waitErr != nil {
		return p.fail(log, "transcribe_wait", waitErr)
	}
	if status == transcription.StatusFailed {
		return p.fail(log, "transcribe", ErrTranscriptionFailed)
	}

	resultKey := job.RemoteKey + ".json"
	data, err := p.objects.Fetch(ctx, resultKey)
	if err != nil {
		return p.fail(log, "fetch_transcript", err)
	}
	p.deleteObject(ctx, log, resultKey)

	job.Transcript, err = extractTranscript(data)
	if err != nil {
		return p.fail(log, "fetch_transcript", err)
	}
	log.Info("voicemail transcribed", "transcript", job.Transcript)

	// Notification is best-effort: a messaging outage must not stop the
	// local archive step.
	if err := p.notifier.Post(ctx, job.Transcript); err != nil {
		log.Error("transcript notification failed", "error", err)
	}

	now := p.now()
	archiveName := now.Format("2006-01-02") + "_" + strconv.FormatInt(now.Unix(), 10) + ".wav"
	archivePath := filepath.Join(p.spoolDir, archiveName)
	if err := os.Rename(job.LocalPath, archivePath); err != nil {
		return p.fail(log, "archive", err)
	}
	archived = true

	log.Info("voicemail processed", "archive", archiveName)
	return nil
}

// waitForJob polls the job until it reaches a terminal status or the poll
// budget is exhausted.
func (p *Pipeline) waitForJob(ctx context.Context, jobName string) (transcription.Status, error) {
	deadline := p.now().Add(p.pollTimeout)
	for {
		status, err := p.transcriber.Status(ctx, jobName)
		if err != nil {
			return "", err
		}
		if status.Terminal() {
			return status, nil
		}
		if !p.now().Before(deadline) {
			return "", fmt.Errorf("%w after %v", ErrPollTimeout, p.pollTimeout)
		}
		if err := p.sleep(ctx, p.pollInterval); err != nil {
			return "", err
		}
	}
}

// cleanupRemote removes the transcription job record and the uploaded
// audio object. Failures are logged only; the objects expire as orphans at
// worst.
func (p *Pipeline) cleanupRemote(ctx context.Context, log *slog.Logger, key string) {
	if err := p.transcriber.Delete(ctx, key); err != nil {
		log.Warn("failed to delete transcription job", "job", key, "error", err)
	}
	p.deleteObject(ctx, log, key)
}

func (p *Pipeline) deleteObject(ctx context.Context, log *slog.Logger, key string) {
	if err := p.objects.Delete(ctx, key); err != nil {
		log.Warn("failed to delete scratch object", "key", key, "error", err)
	}
}

// fail logs one stage failure with its identifiers and wraps the error.
func (p *Pipeline) fail(log *slog.Logger, stage string, err error) error {
	log.Error("pipeline stage failed", "stage", stage, "error", err)
	return fmt.Errorf("%s: %w", stage, err)
}

// extractTranscript pulls the first transcript alternative out of the
// result document.
func extractTranscript(data []byte) (string, error) {
	var result transcription.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parsing transcript document: %w", err)
	}
	if len(result.Results.Transcripts) == 0 {
		return "", fmt.Errorf("transcript document has no transcripts")
	}
	return result.Results.Transcripts[0].Transcript, nil
}

// sleepContext sleeps for d unless ctx is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
