package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"studio/internal/domain"
)

// DefaultVideoModel is used when a video request names no model.
const DefaultVideoModel = "veo3.1"

const defaultVideoSeconds = 8

var (
	videoSubmitPaths = []string{"/videos", "/video"}
	videoQueryPaths  = []string{"/videos/%s", "/video/%s"}
)

// VideoRequest captures the inputs of a video job.
type VideoRequest struct {
	Model          string
	Prompt         string
	SystemContext  string
	Storyboard     string
	NegativePrompt string
	AspectRatio    string
	Duration       int
	// ReferenceImage is an optional PNG sent as input_reference.
	ReferenceImage []byte
}

// Submission is the parsed response of a video submission.
type Submission struct {
	TaskID    string
	RawStatus string
	Status    domain.Status
	Progress  int
	Raw       json.RawMessage
}

// TaskStatus is the parsed response of a status query.
type TaskStatus struct {
	TaskID    string
	RawStatus string
	Status    domain.Status
	Progress  int
	ResultURL string
	// Message is the provider supplied failure text, if any.
	Message string
	Raw     json.RawMessage
}

type taskPayload struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Status    string          `json:"status"`
	Progress  flexInt         `json:"progress"`
	VideoURL  string          `json:"video_url"`
	URL       string          `json:"url"`
	OutputURL string          `json:"output_url"`
	Error     json.RawMessage `json:"error"`
	Message   string          `json:"message"`
}

// CombinedPrompt merges the structured prompt fields into the single prompt
// the API accepts.
func CombinedPrompt(req VideoRequest) string {
	sections := []struct{ title, text string }{
		{"System Context", req.SystemContext},
		{"Storyboard", req.Storyboard},
		{"Negative Prompt", req.NegativePrompt},
		{"Prompt", req.Prompt},
	}
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		parts = append(parts, s.title+":\n"+s.text)
	}
	return strings.Join(parts, "\n\n")
}

// VideoSize maps an aspect ratio to the pixel size the API expects.
func VideoSize(aspectRatio string) string {
	if strings.TrimSpace(aspectRatio) == "9:16" {
		return "720x1280"
	}
	return "1280x720"
}

// SubmitVideo posts a video job as multipart form data. The plural path is
// tried first; the singular one only when the server rejects the plural
// endpoint as invalid.
func (c *Client) SubmitVideo(ctx context.Context, apiKey string, req VideoRequest) (*Submission, error) {
	key, err := requireKey(apiKey)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeVideoForm(req)
	if err != nil {
		return nil, err
	}
	data, err := c.doWithFallback(ctx, videoSubmitPaths, request{
		method:      http.MethodPost,
		apiKey:      key,
		contentType: contentType,
		body:        body,
	})
	if err != nil {
		return nil, err
	}

	var parsed taskPayload
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("genapi: decode video submission: %w", err)
	}
	taskID := firstNonEmpty(parsed.ID, parsed.TaskID)
	if taskID == "" {
		return nil, fmt.Errorf("genapi: video submission returned no task id")
	}
	progress := int(parsed.Progress)
	return &Submission{
		TaskID:    taskID,
		RawStatus: parsed.Status,
		Status:    c.vocab.Map(parsed.Status, progress, resultURL(parsed)),
		Progress:  progress,
		Raw:       json.RawMessage(data),
	}, nil
}

// QueryVideo fetches the current state of a video task.
func (c *Client) QueryVideo(ctx context.Context, apiKey, taskID string) (*TaskStatus, error) {
	key, err := requireKey(apiKey)
	if err != nil {
		return nil, err
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, fmt.Errorf("genapi: task id required")
	}
	escaped := url.PathEscape(taskID)
	paths := make([]string, len(videoQueryPaths))
	for i, p := range videoQueryPaths {
		paths[i] = fmt.Sprintf(p, escaped)
	}
	data, err := c.doWithFallback(ctx, paths, request{method: http.MethodGet, apiKey: key})
	if err != nil {
		return nil, err
	}

	var parsed taskPayload
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("genapi: decode video status: %w", err)
	}
	progress := int(parsed.Progress)
	result := resultURL(parsed)
	message := errorText(parsed.Error)
	if message == "" {
		message = strings.TrimSpace(parsed.Message)
	}
	return &TaskStatus{
		TaskID:    taskID,
		RawStatus: parsed.Status,
		Status:    c.vocab.Map(parsed.Status, progress, result),
		Progress:  progress,
		ResultURL: result,
		Message:   message,
		Raw:       json.RawMessage(data),
	}, nil
}

func resultURL(p taskPayload) string {
	return firstNonEmpty(p.VideoURL, p.URL, p.OutputURL)
}

func encodeVideoForm(req VideoRequest) ([]byte, string, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = DefaultVideoModel
	}
	seconds := req.Duration
	if seconds <= 0 {
		seconds = defaultVideoSeconds
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"model", model},
		{"prompt", CombinedPrompt(req)},
		{"seconds", strconv.Itoa(seconds)},
		{"size", VideoSize(req.AspectRatio)},
		{"watermark", "false"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if len(req.ReferenceImage) > 0 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="input_reference"; filename="input_reference.png"`)
		h.Set("Content-Type", "image/png")
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(req.ReferenceImage); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
