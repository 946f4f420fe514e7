// Package ucxn is a thin client for the Cisco Unity Connection REST APIs:
// CUPI for users, call handlers and greetings, CUMI for voice message
// attachments, and the SOAP message event service for subscriptions.
package ucxn

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. "https://unity.example.com:9110".
	BaseURL  string
	Username string
	Password string
	// InsecureTLS skips certificate validation. Off by default; only for
	// lab systems with self-signed certificates.
	InsecureTLS bool
	// Timeout bounds each API call. Zero means 30 seconds.
	Timeout time.Duration
}

// Client talks to one Unity Connection server with basic auth over TLS.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// New builds a Client from opts.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		slog.Warn("unity connection certificate validation disabled")
	}

	return &Client{
		baseURL:  opts.BaseURL,
		username: opts.Username,
		password: opts.Password,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// newRequest builds an authenticated JSON request for the given API path.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do executes req and fails on any non-2xx status.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	return resp, nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// ListUsers returns all users on the server.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var env userEnvelope
	if err := c.getJSON(ctx, "/vmrest/users", &env); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return env.Users, nil
}

// GetUser returns one user by object ID.
func (c *Client) GetUser(ctx context.Context, objectID string) (User, error) {
	var u User
	if err := c.getJSON(ctx, "/vmrest/users/"+url.PathEscape(objectID), &u); err != nil {
		return User{}, fmt.Errorf("fetching user %s: %w", objectID, err)
	}
	return u, nil
}

// UserObjectID resolves a mailbox alias to the user's object ID via a CUPI
// alias query.
func (c *Client) UserObjectID(ctx context.Context, alias string) (string, error) {
	query := url.QueryEscape(fmt.Sprintf("(alias is %s)", alias))

	var env userEnvelope
	if err := c.getJSON(ctx, "/vmrest/users?query="+query, &env); err != nil {
		return "", fmt.Errorf("querying user by alias %q: %w", alias, err)
	}
	if len(env.Users) == 0 || env.Users[0].ObjectID == "" {
		return "", fmt.Errorf("no user with alias %q", alias)
	}
	return env.Users[0].ObjectID, nil
}

// AlternateGreeting returns the alternate greeting state for a call handler.
func (c *Client) AlternateGreeting(ctx context.Context, callHandlerID string) (Greeting, error) {
	var g Greeting
	path := "/vmrest/handlers/callhandlers/" + url.PathEscape(callHandlerID) + "/greetings/Alternate"
	if err := c.getJSON(ctx, path, &g); err != nil {
		return Greeting{}, fmt.Errorf("fetching alternate greeting for %s: %w", callHandlerID, err)
	}
	return g, nil
}

// SetAlternateGreeting enables or disables the alternate greeting and
// returns the raw upstream response body, which API callers pass through.
func (c *Client) SetAlternateGreeting(ctx context.Context, callHandlerID string, enabled bool) ([]byte, error) {
	body, err := json.Marshal(map[string]string{
		"TimeExpires": "",
		"Enabled":     fmt.Sprintf("%t", enabled),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding greeting update: %w", err)
	}

	path := "/vmrest/handlers/callhandlers/" + url.PathEscape(callHandlerID) + "/greetings/Alternate"
	req, err := c.newRequest(ctx, http.MethodPut, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("updating alternate greeting for %s: %w", callHandlerID, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading greeting update response: %w", err)
	}
	return out, nil
}

// DownloadMessage streams the first attachment of a voice message to
// destPath. The CUMI message key is "0:" plus the message ID.
func (c *Client) DownloadMessage(ctx context.Context, messageID, userObjectID, destPath string) error {
	path := fmt.Sprintf("/vmrest/messages/0:%s/attachments/0?userobjectid=%s",
		url.PathEscape(messageID), url.QueryEscape(userObjectID))

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("downloading message %s: %w", messageID, err)
	}
	defer resp.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
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

// UploadGreetingAudio replaces the alternate greeting stream file for a
// call handler with the wav file at srcPath.
func (c *Client) UploadGreetingAudio(ctx context.Context, callHandlerID, locale, srcPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer f.Close()

	path := fmt.Sprintf("/vmrest/handlers/callhandlers/%s/greetings/Alternate/greetingstreamfiles/%s/audio",
		url.PathEscape(callHandlerID), url.PathEscape(locale))

	req, err := c.newRequest(ctx, http.MethodPut, path, f)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("uploading greeting audio for %s: %w", callHandlerID, err)
	}
	resp.Body.Close()
	return nil
}
