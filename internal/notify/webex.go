// Package notify posts voicemail transcripts to a Webex messaging target.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultBaseURL is the Webex REST API root.
const defaultBaseURL = "https://webexapis.com"

// WebexOptions configures a Webex notifier.
type WebexOptions struct {
	// Token is the bot bearer token.
	Token string
	// RoomID is the destination room. Wins over ToEmail when both are set.
	RoomID string
	// ToEmail is a direct-message recipient, used when RoomID is empty.
	ToEmail string
	// BaseURL overrides the API root, for tests.
	BaseURL string
	// Timeout bounds each post. Zero means 15 seconds.
	Timeout time.Duration
}

// Webex posts messages to one configured room or recipient.
type Webex struct {
	token   string
	roomID  string
	toEmail string
	baseURL string
	http    *http.Client
}

// NewWebex builds a notifier from opts.
func NewWebex(opts WebexOptions) *Webex {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Webex{
		token:   opts.Token,
		roomID:  opts.RoomID,
		toEmail: opts.ToEmail,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// message is the Webex create-message request body. Exactly one of RoomID
// and ToPersonEmail is set.
type message struct {
	RoomID        string `json:"roomId,omitempty"`
	ToPersonEmail string `json:"toPersonEmail,omitempty"`
	Text          string `json:"text"`
}

// Post sends text to the configured destination.
func (w *Webex) Post(ctx context.Context, text string) error {
	msg := message{Text: text}
	if w.roomID != "" {
		msg.RoomID = w.roomID
	} else if w.toEmail != "" {
		msg.ToPersonEmail = w.toEmail
	} else {
		return fmt.Errorf("no webex destination configured")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding webex message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webex request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting webex message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webex message post: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
