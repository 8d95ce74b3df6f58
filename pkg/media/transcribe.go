package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UnavailableMarker prefixes placeholder transcripts.
const UnavailableMarker = "[Transcript temporarily unavailable"

// FallbackTranscript is stored when transcription fails so the session stays usable.
func FallbackTranscript(audioBytes int64) string {
	return fmt.Sprintf(`%s due to API issues]

This audio file (%.1f MB) could not be transcribed at this time due to API connectivity issues.

The video processing system is working correctly, but the transcription service is experiencing temporary difficulties. Please try again later or contact support if the issue persists.

You can still use this session to test the chat functionality with this placeholder content.`, UnavailableMarker, float64(audioBytes)/(1024*1024))
}

// IsFallbackTranscript reports whether transcript is the placeholder text.
func IsFallbackTranscript(transcript string) bool {
	return strings.Contains(transcript, UnavailableMarker)
}

// TranscriberConfig points at a Whisper-compatible /audio/transcriptions endpoint.
type TranscriberConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Transcriber uploads audio files for speech-to-text.
type Transcriber struct {
	cfg        TranscriberConfig
	httpClient *http.Client
}

// NewTranscriber builds a transcriber. httpClient may be nil.
func NewTranscriber(cfg TranscriberConfig, httpClient *http.Client) *Transcriber {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Transcriber{cfg: cfg, httpClient: httpClient}
}

// Transcribe streams the file as multipart form data and returns the text.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	if t.cfg.APIKey == "" {
		return "", fmt.Errorf("transcription provider not configured")
	}
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer file.Close() //nolint:errcheck

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := writeForm(form, file, filepath.Base(path), t.cfg.Model)
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/audio/transcriptions", pr)
	if err != nil {
		_ = pr.Close()
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("transcription http %d: %s", resp.StatusCode, string(raw))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", fmt.Errorf("transcription returned no text")
	}
	return text, nil
}

func writeForm(form *multipart.Writer, file io.Reader, name, model string) error {
	if err := form.WriteField("model", model); err != nil {
		return err
	}
	if err := form.WriteField("response_format", "json"); err != nil {
		return err
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}
