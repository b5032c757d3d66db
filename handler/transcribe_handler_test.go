package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type stubProvider struct {
	text string
	err  error
}

func (p *stubProvider) Transcribe(ctx context.Context, audioURL string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.text, nil
}

func relayRouter(p *stubProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := gin.New()
	r.POST("/transcribe", NewTranscribeHandler(p, logger).Transcribe)
	return r
}

func TestTranscribeRelaySuccess(t *testing.T) {
	r := relayRouter(&stubProvider{text: "hello from the past"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader(`{"audio_url":"https://store.test/clip?sig=x"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["text"] != "hello from the past" {
		t.Errorf("text = %q", body["text"])
	}
}

func TestTranscribeRelayProviderErrorVerbatim(t *testing.T) {
	r := relayRouter(&stubProvider{err: errors.New("audio too long: 4h12m exceeds limit")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader(`{"audio_url":"https://store.test/clip"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "audio too long: 4h12m exceeds limit" {
		t.Errorf("error = %q, want the provider message verbatim", body["error"])
	}
}

func TestTranscribeRelayMissingURL(t *testing.T) {
	r := relayRouter(&stubProvider{text: "unused"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
