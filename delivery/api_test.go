package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testEnvelope() Envelope {
	return Envelope{
		Recipient:  "inbox@example.com",
		SenderName: "Voice Message",
		SenderAddr: "noreply@example.com",
		Subject:    "New voice message",
	}
}

func writeAsset(t *testing.T, content string) *Message {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1700000000-1-voice.mp3")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return &Message{Path: path, Filename: "voice.mp3", ContentType: "audio/mpeg"}
}

func TestAPIDeliver_Success(t *testing.T) {
	var (
		gotKey  string
		gotBody apiEmail
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		gotKey = r.Header.Get("api-key")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	b, err := NewAPI(APIConfig{URL: ts.URL, Key: "key123", Envelope: testEnvelope()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = b.Close() }()

	msg := writeAsset(t, "mp3-bytes")
	if err := b.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if gotKey != "key123" {
		t.Errorf("api-key header: got %q", gotKey)
	}
	if gotBody.Sender.Email != "noreply@example.com" || gotBody.Sender.Name != "Voice Message" {
		t.Errorf("sender: got %+v", gotBody.Sender)
	}
	if len(gotBody.To) != 1 || gotBody.To[0].Email != "inbox@example.com" {
		t.Errorf("to: got %+v", gotBody.To)
	}
	if gotBody.Subject != "New voice message" {
		t.Errorf("subject: got %q", gotBody.Subject)
	}
	if len(gotBody.Attachment) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(gotBody.Attachment))
	}
	if gotBody.Attachment[0].Name != "voice.mp3" {
		t.Errorf("attachment name: got %q", gotBody.Attachment[0].Name)
	}
	decoded, err := base64.StdEncoding.DecodeString(gotBody.Attachment[0].Content)
	if err != nil {
		t.Fatalf("attachment content not base64: %v", err)
	}
	if string(decoded) != "mp3-bytes" {
		t.Errorf("attachment content: got %q", decoded)
	}
}

func TestAPIDeliver_Non2xxCarriesStatusAndDetail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized","message":"Key not found"}`))
	}))
	defer ts.Close()

	b, err := NewAPI(APIConfig{URL: ts.URL, Key: "bad-key", Envelope: testEnvelope()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = b.Close() }()

	err = b.Deliver(context.Background(), writeAsset(t, "x"))
	if err == nil {
		t.Fatal("expected error for 401")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError in chain, got %v", err)
	}
	if statusErr.Code != http.StatusUnauthorized {
		t.Errorf("code: got %d", statusErr.Code)
	}
	if !strings.Contains(statusErr.Detail, "Key not found") {
		t.Errorf("detail: got %q", statusErr.Detail)
	}
	if !errors.Is(err, ErrAuth) {
		t.Errorf("expected ErrAuth classification, got %v", err)
	}
}

func TestAPIDeliver_SingleAttemptNoRetry(t *testing.T) {
	var attempts int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	b, err := NewAPI(APIConfig{URL: ts.URL, Key: "k", Envelope: testEnvelope()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = b.Close() }()

	if err := b.Deliver(context.Background(), writeAsset(t, "x")); err == nil {
		t.Fatal("expected error for 500")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts)
	}
}

func TestAPIDeliver_MissingAssetFile(t *testing.T) {
	b, err := NewAPI(APIConfig{URL: "http://example.invalid", Key: "k", Envelope: testEnvelope()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	err = b.Deliver(context.Background(), &Message{Path: filepath.Join(t.TempDir(), "gone.mp3"), Filename: "gone.mp3"})
	if err == nil {
		t.Fatal("expected error for missing asset")
	}
}

func TestAPISendLink_BodyCarriesURL(t *testing.T) {
	var gotBody apiEmail
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	b, err := NewAPI(APIConfig{URL: ts.URL, Key: "k", Envelope: testEnvelope()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = b.Close() }()

	url := "https://cdn.example.com/voices/1700-1-voice.mp3"
	if err := b.SendLink(context.Background(), "voice.mp3", url); err != nil {
		t.Fatalf("send link: %v", err)
	}

	if !strings.Contains(gotBody.HTMLContent, url) {
		t.Errorf("html body missing url: %q", gotBody.HTMLContent)
	}
	if len(gotBody.Attachment) != 0 {
		t.Errorf("link email must not carry attachments, got %d", len(gotBody.Attachment))
	}
}

func TestNewAPI_Validation(t *testing.T) {
	if _, err := NewAPI(APIConfig{Key: "k"}); err == nil {
		t.Error("expected error for missing URL")
	}
	if _, err := NewAPI(APIConfig{URL: "https://api.example.com"}); err == nil {
		t.Error("expected error for missing key")
	}
}
