package asr

import (
	"bytes"
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

	"github.com/sirupsen/logrus"

	"livesub/internal/audio"
)

// ServerRecognizer posts each segment as a WAV file to a whisper.cpp server's
// /inference endpoint.
type ServerRecognizer struct {
	url    string
	client *http.Client
	logger *logrus.Logger
}

// NewServerRecognizer targets the server at baseURL, e.g.
// http://127.0.0.1:8080.
func NewServerRecognizer(baseURL string, timeout time.Duration, logger *logrus.Logger) *ServerRecognizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ServerRecognizer{
		url:    strings.TrimRight(baseURL, "/") + "/inference",
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

func (r *ServerRecognizer) Recognize(ctx context.Context, samples []float32, sampleRate int, lang string) (string, error) {
	tmp, err := os.MkdirTemp("", "livesub-seg-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.RemoveAll(tmp) }()
	path := filepath.Join(tmp, "segment.wav")
	if err := audio.WriteWAV(path, samples, sampleRate); err != nil {
		return "", fmt.Errorf("write segment wav: %w", err)
	}

	body, contentType, err := multipartBody(path, lang)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	var out inferenceResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("inference: %s", out.Error)
	}
	r.logger.Debugf("asr: %d samples recognized in %s", len(samples), time.Since(start).Round(time.Millisecond))
	return strings.TrimSpace(out.Text), nil
}

func multipartBody(path, lang string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	fields := map[string]string{
		"response_format": "json",
		"temperature":     "0.0",
	}
	if lang != "" {
		fields["language"] = lang
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
