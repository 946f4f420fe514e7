package greeting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakePBX struct {
	log *[]string

	toggleBody []byte
	toggleErr  error
	uploadErr  error

	callHandlerID string
	enabled       bool
	locale        string
	uploadedAudio []byte
}

func (p *fakePBX) SetAlternateGreeting(ctx context.Context, callHandlerID string, enabled bool) ([]byte, error) {
	*p.log = append(*p.log, "toggle")
	p.callHandlerID = callHandlerID
	p.enabled = enabled
	return p.toggleBody, p.toggleErr
}

func (p *fakePBX) UploadGreetingAudio(ctx context.Context, callHandlerID, locale, srcPath string) error {
	*p.log = append(*p.log, "upload")
	if p.uploadErr != nil {
		return p.uploadErr
	}
	p.locale = locale
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	p.uploadedAudio = data
	return nil
}

type fakeSynth struct {
	log  *[]string
	err  error
	text string
}

func (s *fakeSynth) Synthesize(ctx context.Context, text, destPath string) error {
	*s.log = append(*s.log, "synthesize")
	if s.err != nil {
		return s.err
	}
	s.text = text
	return os.WriteFile(destPath, []byte("MP3:"+text), 0o644)
}

type fakeConv struct {
	log *[]string
	err error
}

func (c *fakeConv) ToTelephonyWav(ctx context.Context, srcPath, destPath string) error {
	*c.log = append(*c.log, "convert")
	if c.err != nil {
		return c.err
	}
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, append([]byte("WAV:"), data...), 0o644)
}

type fakeForwarder struct {
	log     *[]string
	err     error
	enabled bool
	called  bool
}

func (f *fakeForwarder) SetForwarding(ctx context.Context, enabled bool) error {
	*f.log = append(*f.log, "forward")
	f.called = true
	f.enabled = enabled
	return f.err
}

type flowFixture struct {
	log   []string
	pbx   *fakePBX
	synth *fakeSynth
	conv  *fakeConv
	fwd   *fakeForwarder
	spool string
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	f := &flowFixture{spool: t.TempDir()}
	f.pbx = &fakePBX{log: &f.log, toggleBody: []byte(`{"Enabled":"true"}`)}
	f.synth = &fakeSynth{log: &f.log}
	f.conv = &fakeConv{log: &f.log}
	f.fwd = &fakeForwarder{log: &f.log}
	return f
}

func (f *flowFixture) flow(fwd Forwarder) *Flow {
	return New(Options{
		PBX:         f.pbx,
		Synthesizer: f.synth,
		Converter:   f.conv,
		Forwarder:   fwd,
		SpoolDir:    f.spool,
		Locale:      "1033",
	})
}

func TestToggleEnableWithMessage(t *testing.T) {
	f := newFlowFixture(t)

	body, err := f.flow(f.fwd).Toggle(context.Background(), "ch-9", true, "Out until Monday")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"Enabled":"true"}` {
		t.Errorf("body = %q, want PBX response relayed", body)
	}

	want := []string{"toggle", "synthesize", "convert", "upload", "forward"}
	if len(f.log) != len(want) {
		t.Fatalf("calls = %v, want %v", f.log, want)
	}
	for i := range want {
		if f.log[i] != want[i] {
			t.Fatalf("calls = %v, want %v", f.log, want)
		}
	}

	if f.synth.text != "Out until Monday" {
		t.Errorf("synthesized text = %q", f.synth.text)
	}
	if f.pbx.locale != "1033" {
		t.Errorf("locale = %q, want 1033", f.pbx.locale)
	}
	if string(f.pbx.uploadedAudio) != "WAV:MP3:Out until Monday" {
		t.Errorf("uploaded audio = %q, want converted synthesis output", f.pbx.uploadedAudio)
	}
	if !f.fwd.enabled {
		t.Error("forwarding not enabled")
	}

	// Scratch audio is gone.
	for _, name := range []string{"ch-9.mp3", "ch-9.wav"} {
		if _, err := os.Stat(filepath.Join(f.spool, name)); !os.IsNotExist(err) {
			t.Errorf("scratch file %s left behind", name)
		}
	}
}

func TestToggleEnableWithoutMessage(t *testing.T) {
	f := newFlowFixture(t)

	if _, err := f.flow(nil).Toggle(context.Background(), "ch-9", true, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.log) != 1 || f.log[0] != "toggle" {
		t.Errorf("calls = %v, want only the greeting toggle", f.log)
	}
}

func TestToggleDisableSkipsSynthesis(t *testing.T) {
	f := newFlowFixture(t)

	// A message with disable is ignored: there is no greeting to record.
	if _, err := f.flow(f.fwd).Toggle(context.Background(), "ch-9", false, "ignored"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"toggle", "forward"}
	if len(f.log) != 2 || f.log[0] != want[0] || f.log[1] != want[1] {
		t.Errorf("calls = %v, want %v", f.log, want)
	}
	if f.pbx.enabled {
		t.Error("toggle sent enabled=true for a disable request")
	}
	if f.fwd.enabled {
		t.Error("forwarding still enabled after disable")
	}
}

func TestToggleErrorStopsFlow(t *testing.T) {
	f := newFlowFixture(t)
	f.pbx.toggleErr = errors.New("upstream 404")

	if _, err := f.flow(f.fwd).Toggle(context.Background(), "ch-9", true, "msg"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(f.log) != 1 {
		t.Errorf("calls after toggle failure = %v", f.log[1:])
	}
}

func TestSynthesisErrorStopsUpload(t *testing.T) {
	f := newFlowFixture(t)
	f.synth.err = errors.New("throttled")

	if _, err := f.flow(f.fwd).Toggle(context.Background(), "ch-9", true, "msg"); err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, ev := range f.log {
		if ev == "upload" || ev == "forward" {
			t.Errorf("%s ran after synthesis failure: %v", ev, f.log)
		}
	}
}

func TestUploadErrorRemovesScratch(t *testing.T) {
	f := newFlowFixture(t)
	f.pbx.uploadErr = errors.New("pbx rejected audio")

	if _, err := f.flow(nil).Toggle(context.Background(), "ch-9", true, "msg"); err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, name := range []string{"ch-9.mp3", "ch-9.wav"} {
		if _, err := os.Stat(filepath.Join(f.spool, name)); !os.IsNotExist(err) {
			t.Errorf("scratch file %s left behind after upload failure", name)
		}
	}
}

func TestNilForwarderSkipsRedirect(t *testing.T) {
	f := newFlowFixture(t)

	if _, err := f.flow(nil).Toggle(context.Background(), "ch-9", true, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.fwd.called {
		t.Error("forwarder called despite not being configured")
	}
}
