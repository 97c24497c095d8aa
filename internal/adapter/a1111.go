package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vk/promptgrid/internal/ctxlog"
)

const (
	samplersPath  = "/sdapi/v1/samplers"
	interruptPath = "/sdapi/v1/interrupt"

	// maxErrorBody bounds how much of an error response ends up in messages.
	maxErrorBody = 512
)

// A1111 talks to an AUTOMATIC1111-compatible web API.
type A1111 struct {
	baseURL string
	path    string
	client  *http.Client
}

// NewA1111 returns an adapter posting to baseURL+path. A nil client means
// http.DefaultClient.
func NewA1111(baseURL, path string, client *http.Client) *A1111 {
	if client == nil {
		client = http.DefaultClient
	}
	return &A1111{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
		client:  client,
	}
}

type txt2imgPayload struct {
	Prompt           string         `json:"prompt"`
	NegativePrompt   string         `json:"negative_prompt"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	Steps            int            `json:"steps"`
	CFGScale         float64        `json:"cfg_scale"`
	SamplerName      string         `json:"sampler_name"`
	Seed             int64          `json:"seed"`
	BatchSize        int            `json:"batch_size"`
	NIter            int            `json:"n_iter"`
	OverrideSettings map[string]any `json:"override_settings,omitempty"`
}

type txt2imgResponse struct {
	Images []string        `json:"images"`
	Info   json.RawMessage `json:"info"`
}

// Generate posts the request and decodes the returned images.
func (a *A1111) Generate(ctx context.Context, req Request) (*Response, error) {
	const op = "txt2img"
	logger := ctxlog.FromContext(ctx)

	payload := txt2imgPayload{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		CFGScale:       req.CFGScale,
		SamplerName:    req.Sampler,
		Seed:           req.Seed,
		BatchSize:      max(req.BatchSize, 1),
		NIter:          1,
	}
	if req.Checkpoint != "" {
		payload.OverrideSettings = map[string]any{"sd_model_checkpoint": req.Checkpoint}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("failed to encode payload: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+a.path, bytes.NewReader(body))
	if err != nil {
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	logger.Debug("Posting generation request.", "url", httpReq.URL.String(), "width", req.Width, "height", req.Height, "steps", req.Steps)
	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return nil, &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return nil, &TransientError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	logger.Debug("Received generation response.", "status", resp.StatusCode, "bytes", len(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(op, resp.StatusCode, truncate(string(raw), maxErrorBody))
	}

	var decoded txt2imgResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &PermanentError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if len(decoded.Images) == 0 {
		return nil, &PermanentError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("response contains no images")}
	}

	out := &Response{Images: make([][]byte, 0, len(decoded.Images)), Info: infoString(decoded.Info)}
	for i, img := range decoded.Images {
		data, err := decodeImage(img)
		if err != nil {
			return nil, &PermanentError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("image %d: %w", i, err)}
		}
		out.Images = append(out.Images, data)
	}
	return out, nil
}

// Probe lists the samplers offered by the backend, doubling as a health check.
func (a *A1111) Probe(ctx context.Context) ([]string, error) {
	const op = "samplers"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+samplersPath, nil)
	if err != nil {
		return nil, &PermanentError{Op: op, Err: err}
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(op, resp.StatusCode, truncate(string(raw), maxErrorBody))
	}

	var samplers []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &samplers); err != nil {
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("malformed response: %w", err)}
	}
	names := make([]string, 0, len(samplers))
	for _, s := range samplers {
		names = append(names, s.Name)
	}
	return names, nil
}

// Interrupt asks the backend to stop the generation in progress.
func (a *A1111) Interrupt(ctx context.Context) error {
	const op = "interrupt"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+interruptPath, nil)
	if err != nil {
		return &PermanentError{Op: op, Err: err}
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, "")
	}
	return nil
}

// decodeImage accepts plain base64 as well as data URLs.
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ","); ok {
			s = rest
		}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

// infoString unwraps the info field, which the API sends as a JSON string
// holding another JSON document.
func infoString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
