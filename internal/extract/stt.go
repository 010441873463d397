package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnrecognizedSpeech is returned when the speech-to-text engine ran but could not recognise
// any speech. It is distinct from transport or engine failures.
var ErrUnrecognizedSpeech = errors.New("speech could not be recognized")

// SpeechToText transcribes an audio file.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// WhisperSTT calls an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperSTT struct {
	host   string
	model  string
	apiKey string
	client *http.Client
}

// WhisperOption configures a WhisperSTT.
type WhisperOption func(*WhisperSTT)

// WithHTTPClient sets the HTTP client used for transcription requests.
func WithHTTPClient(c *http.Client) WhisperOption {
	return func(w *WhisperSTT) {
		if c != nil {
			w.client = c
		}
	}
}

// NewWhisperSTT returns a client for host (for example https://api.openai.com/v1).
func NewWhisperSTT(host, model, apiKey string, opts ...WhisperOption) *WhisperSTT {
	w := &WhisperSTT{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe implements SpeechToText.
func (w *WhisperSTT) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	_ = mw.WriteField("model", w.model)
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.host+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var tr transcriptionResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", ErrUnrecognizedSpeech
	}
	return text, nil
}
