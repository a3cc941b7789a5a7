package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// WhisperClient talks to a whisper-server instance over HTTP: models are
// loaded by name, audio is posted as complete WAV files.
type WhisperClient struct {
	endpoint   string
	httpClient *http.Client
	log        *log.Logger
}

func NewWhisperClient(endpoint string, logger *log.Logger) *WhisperClient {
	return &WhisperClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		log: logger,
	}
}

type whisperModel struct {
	model  string
	device string
}

func (m whisperModel) Model() string  { return m.model }
func (m whisperModel) Device() string { return m.device }

func (c *WhisperClient) LoadModel(
	ctx context.Context,
	model, device string,
) (ModelHandle, error) {
	body, err := json.Marshal(map[string]string{
		"model":  model,
		"device": device,
	})
	if err != nil {
		return nil, fmt.Errorf("encode load request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.endpoint+"/load",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create load request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf(
			"load model %s: server returned %d: %s",
			model, resp.StatusCode, bytes.TrimSpace(msg),
		)
	}

	c.log.Info(
		"model ready",
		"model", model,
		"device", device,
		"elapsed", time.Since(start),
	)
	return whisperModel{model: model, device: device}, nil
}

func (c *WhisperClient) Transcribe(
	ctx context.Context,
	handle ModelHandle,
	wav []byte,
) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("write audio payload: %w", err)
	}
	if err := form.WriteField("model", handle.Model()); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := form.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write format field: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.endpoint+"/inference",
		&buf,
	)
	if err != nil {
		return "", fmt.Errorf("create inference request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf(
			"inference failed: server returned %d: %s",
			resp.StatusCode, bytes.TrimSpace(msg),
		)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}

	return result.Text, nil
}
