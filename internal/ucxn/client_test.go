package ucxn

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "secret",
	})
}

func TestUserObjectIDSingleResult(t *testing.T) {
	var gotQuery, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		user, pass, _ := r.BasicAuth()
		gotAuth = user + ":" + pass
		// Unity returns a bare object, not an array, for a single match.
		io.WriteString(w, `{"@total":"1","User":{"ObjectId":"obj-42","Alias":"helpdesk@example.com"}}`)
	})

	id, err := c.UserObjectID(context.Background(), "helpdesk@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "obj-42" {
		t.Errorf("object id = %q, want obj-42", id)
	}
	if gotQuery != "(alias is helpdesk@example.com)" {
		t.Errorf("query = %q, want alias query", gotQuery)
	}
	if gotAuth != "admin:secret" {
		t.Errorf("basic auth = %q, want admin:secret", gotAuth)
	}
}

func TestUserObjectIDNoMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"@total":"0"}`)
	})

	if _, err := c.UserObjectID(context.Background(), "nobody"); err == nil {
		t.Fatal("expected error for unknown alias, got nil")
	}
}

func TestListUsersArrayResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"@total":"2","User":[
			{"ObjectId":"a","Alias":"one@example.com","CallHandlerObjectId":"ch-a"},
			{"ObjectId":"b","Alias":"operator","CallHandlerObjectId":"ch-b"}
		]}`)
	})

	users, err := c.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}
	if users[0].ObjectID != "a" || users[1].CallHandlerObjectID != "ch-b" {
		t.Errorf("unexpected users decoded: %+v", users)
	}
}

func TestSetAlternateGreeting(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"Enabled":"true"}`)
	})

	resp, err := c.SetAlternateGreeting(context.Background(), "ch-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/vmrest/handlers/callhandlers/ch-1/greetings/Alternate" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["Enabled"] != "true" || gotBody["TimeExpires"] != "" {
		t.Errorf("body = %v, want Enabled=true with blank TimeExpires", gotBody)
	}
	if !strings.Contains(string(resp), "Enabled") {
		t.Errorf("response passthrough = %q, want upstream body", resp)
	}
}

func TestSetAlternateGreetingUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such handler", http.StatusNotFound)
	})

	if _, err := c.SetAlternateGreeting(context.Background(), "ch-missing", false); err == nil {
		t.Fatal("expected error for upstream 404, got nil")
	}
}

func TestDownloadMessage(t *testing.T) {
	var gotPath, gotUserObjectID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUserObjectID = r.URL.Query().Get("userobjectid")
		w.Write([]byte("RIFFfakewavdata"))
	})

	dest := filepath.Join(t.TempDir(), "msg.wav")
	err := c.DownloadMessage(context.Background(), "msg-1", "obj-42", dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/vmrest/messages/0:msg-1/attachments/0" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUserObjectID != "obj-42" {
		t.Errorf("userobjectid = %q, want obj-42", gotUserObjectID)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "RIFFfakewavdata" {
		t.Errorf("file content = %q", data)
	}
}

func TestDownloadMessageErrorLeavesNoFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})

	dest := filepath.Join(t.TempDir(), "msg.wav")
	if err := c.DownloadMessage(context.Background(), "msg-1", "obj-42", dest); err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("partial download left on disk")
	}
}

func TestUploadGreetingAudio(t *testing.T) {
	src := filepath.Join(t.TempDir(), "greeting.wav")
	if err := os.WriteFile(src, []byte("RIFFgreeting"), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	var gotPath, gotContentType string
	var gotBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
	})

	err := c.UploadGreetingAudio(context.Background(), "ch-1", "1033", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "/vmrest/handlers/callhandlers/ch-1/greetings/Alternate/greetingstreamfiles/1033/audio"
	if gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if gotContentType != "audio/wav" {
		t.Errorf("content-type = %q, want audio/wav", gotContentType)
	}
	if string(gotBody) != "RIFFgreeting" {
		t.Errorf("uploaded body = %q", gotBody)
	}
}

func TestFlexBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`{"Enabled":"true"}`, true},
		{`{"Enabled":"false"}`, false},
		{`{"Enabled":true}`, true},
	}
	for _, tt := range tests {
		var g Greeting
		if err := json.Unmarshal([]byte(tt.in), &g); err != nil {
			t.Errorf("unmarshal %s: %v", tt.in, err)
			continue
		}
		if bool(g.Enabled) != tt.want {
			t.Errorf("%s decoded to %v, want %v", tt.in, g.Enabled, tt.want)
		}
	}
}

func TestSubscribeEnvelope(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	})

	err := c.Subscribe(context.Background(), SubscribeRequest{
		Resource:    "helpdesk@example.com",
		CallbackURL: "https://relay.example.com/callback",
		TTL:         24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != eventServicePath {
		t.Errorf("path = %q, want %q", gotPath, eventServicePath)
	}
	if !strings.HasPrefix(gotContentType, "text/xml") {
		t.Errorf("content-type = %q, want text/xml", gotContentType)
	}
	for _, want := range []string{
		"<subscribe>",
		"<string>helpdesk@example.com</string>",
		"<string>NEW_MESSAGE</string>",
		"<callbackServiceUrl>https://relay.example.com/callback</callbackServiceUrl>",
		"<hostname>relay.example.com</hostname>",
		"<expiration>",
	} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("soap body missing %q:\n%s", want, gotBody)
		}
	}
}
