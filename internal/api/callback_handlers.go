package api

import (
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/karmatek/vmrelay/internal/pipeline"
)

// eventNewMessage is the only event type that triggers processing.
// Keep-alives and message update/read/delete events are acknowledged and
// dropped.
const eventNewMessage = "NEW_MESSAGE"

// messageEvent mirrors the PBX notification document. All fields ride on
// attributes; messageInfo is absent on keep-alives.
type messageEvent struct {
	EventType   string `xml:"eventType,attr"`
	MailboxID   string `xml:"mailboxId,attr"`
	DisplayName string `xml:"displayName,attr"`
	MessageInfo struct {
		MessageID string `xml:"messageId,attr"`
		CallerANI string `xml:"callerAni,attr"`
	} `xml:"messageInfo"`
}

// handleCallback accepts one PBX notification. The PBX retries and then
// disables subscriptions on non-2xx responses, so this always acknowledges
// with 200 once the payload has been read; processing runs detached.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		slog.Error("failed to read notification body", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	var event messageEvent
	if err := xml.Unmarshal(body, &event); err != nil {
		slog.Warn("unparseable notification ignored", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if event.EventType != eventNewMessage {
		slog.Debug("notification event ignored", "event_type", event.EventType)
		w.WriteHeader(http.StatusOK)
		return
	}

	job := pipeline.Job{
		Alias:       event.MailboxID,
		DisplayName: event.DisplayName,
		MessageID:   event.MessageInfo.MessageID,
		CallerANI:   event.MessageInfo.CallerANI,
	}

	// Detached from the request: the webhook must return immediately while
	// download, transcription and delivery run for minutes. The correlation
	// id ties the acknowledgment log line to the pipeline's own logging.
	correlationID := uuid.NewString()
	go func() {
		log := slog.With("correlation_id", correlationID)
		if err := s.processor.Process(context.WithoutCancel(r.Context()), job); err != nil {
			log.Error("notification processing failed", "message_id", job.MessageID, "error", err)
		}
	}()

	slog.Info("notification accepted",
		"correlation_id", correlationID,
		"alias", job.Alias,
		"message_id", job.MessageID,
	)
	w.WriteHeader(http.StatusOK)
}
