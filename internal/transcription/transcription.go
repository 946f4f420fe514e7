// Package transcription starts and tracks asynchronous speech-to-text jobs.
package transcription

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	transcribetypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
)

// Status is the lifecycle state of a transcription job.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the job has finished, successfully or not.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AWSTranscriber runs jobs on the AWS Transcribe service, writing results
// into the scratch bucket next to the source audio.
type AWSTranscriber struct {
	client   *transcribe.Client
	bucket   string
	language string
}

// NewAWS builds a transcriber that reads media from and writes results to
// the given bucket.
func NewAWS(cfg aws.Config, bucket, language string) *AWSTranscriber {
	return &AWSTranscriber{
		client:   transcribe.NewFromConfig(cfg),
		bucket:   bucket,
		language: language,
	}
}

// Start submits a job named jobName over the media at mediaURI. The result
// document lands in the bucket at "<jobName>.json".
func (t *AWSTranscriber) Start(ctx context.Context, jobName, mediaURI string) error {
	_, err := t.client.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
		LanguageCode:         transcribetypes.LanguageCode(t.language),
		MediaFormat:          transcribetypes.MediaFormatWav,
		Media: &transcribetypes.Media{
			MediaFileUri: aws.String(mediaURI),
		},
		OutputBucketName: aws.String(t.bucket),
	})
	if err != nil {
		return fmt.Errorf("starting transcription job %s: %w", jobName, err)
	}
	return nil
}

// Status fetches the current state of a job.
func (t *AWSTranscriber) Status(ctx context.Context, jobName string) (Status, error) {
	out, err := t.client.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
	})
	if err != nil {
		return "", fmt.Errorf("fetching transcription job %s: %w", jobName, err)
	}

	switch out.TranscriptionJob.TranscriptionJobStatus {
	case transcribetypes.TranscriptionJobStatusCompleted:
		return StatusCompleted, nil
	case transcribetypes.TranscriptionJobStatusFailed:
		return StatusFailed, nil
	default:
		// QUEUED and IN_PROGRESS both mean "keep waiting".
		return StatusInProgress, nil
	}
}

// Delete removes the job record from the service.
func (t *AWSTranscriber) Delete(ctx context.Context, jobName string) error {
	_, err := t.client.DeleteTranscriptionJob(ctx, &transcribe.DeleteTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
	})
	if err != nil {
		return fmt.Errorf("deleting transcription job %s: %w", jobName, err)
	}
	return nil
}

// Result is the shape of the JSON document the service writes to the
// output bucket.
type Result struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}
