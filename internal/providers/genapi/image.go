package genapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode"
)

// DefaultImageModel is used when the requested model is not allowed.
const DefaultImageModel = "gemini-3-pro-image-preview"

const maxImagesPerRequest = 10

var allowedImageModels = map[string]bool{
	"nano-banana-2":                     true,
	"nano-banana-2-2k-vip":              true,
	"gemini-3-pro-image-preview":        true,
	"gemini-3-pro-image-preview-2k-vip": true,
	"gpt-image-1.5":                     true,
}

var imageSizes = map[string]string{
	"1:1":  "1024x1024",
	"16:9": "1792x1024",
	"9:16": "1024x1792",
	"4:3":  "1024x1024",
	"3:4":  "1024x1024",
}

// ImageModel returns model when it is allowed, DefaultImageModel otherwise.
func ImageModel(model string) string {
	model = strings.TrimSpace(model)
	if allowedImageModels[model] {
		return model
	}
	return DefaultImageModel
}

// ImageSize maps an aspect ratio to the pixel size the API expects.
func ImageSize(aspectRatio string) string {
	if size, ok := imageSizes[strings.TrimSpace(aspectRatio)]; ok {
		return size
	}
	return "1024x1024"
}

// ImageRequest captures the inputs of an image job.
type ImageRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	NumImages   int
}

// ImageItem is one output of an image job. Exactly one of URL or Data is set.
type ImageItem struct {
	URL  string
	Data []byte
}

// ImageResult is the parsed response of an image submission.
type ImageResult struct {
	Items []ImageItem
	// Skipped counts entries that carried neither a URL nor decodable data.
	Skipped int
	Raw     json.RawMessage
}

type imagePayload struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		URL         string `json:"url"`
		ImageURL    string `json:"image_url"`
		Image       string `json:"image"`
		B64JSON     string `json:"b64_json"`
		Base64      string `json:"base64"`
		ImageBase64 string `json:"image_base64"`
	} `json:"data"`
}

// SubmitImage posts an image job. Image jobs complete within the request, so
// the result already lists every output.
func (c *Client) SubmitImage(ctx context.Context, apiKey string, req ImageRequest) (*ImageResult, error) {
	key, err := requireKey(apiKey)
	if err != nil {
		return nil, err
	}
	n := req.NumImages
	if n <= 0 {
		n = 1
	}
	if n > maxImagesPerRequest {
		n = maxImagesPerRequest
	}
	body, err := json.Marshal(imagePayload{
		Model:          ImageModel(req.Model),
		Prompt:         req.Prompt,
		N:              n,
		Size:           ImageSize(req.AspectRatio),
		ResponseFormat: "url",
	})
	if err != nil {
		return nil, err
	}
	data, err := c.do(ctx, "/images/generations", request{
		method:      http.MethodPost,
		apiKey:      key,
		contentType: "application/json",
		body:        body,
	})
	if err != nil {
		return nil, err
	}

	var parsed imageResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("genapi: decode image response: %w", err)
	}
	out := &ImageResult{Raw: json.RawMessage(data)}
	for i, item := range parsed.Data {
		if u := firstNonEmpty(item.URL, item.ImageURL, item.Image); u != "" {
			out.Items = append(out.Items, ImageItem{URL: u})
			continue
		}
		if b64 := firstNonEmpty(item.B64JSON, item.Base64, item.ImageBase64); b64 != "" {
			decoded, err := decodeBase64(b64)
			if err != nil {
				c.logger.Warn().Err(err).Int("index", i).Msg("genapi: undecodable base64 image")
				out.Skipped++
				continue
			}
			out.Items = append(out.Items, ImageItem{Data: decoded})
			continue
		}
		c.logger.Warn().Int("index", i).Msg("genapi: image entry has no url or data")
		out.Skipped++
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// decodeBase64 accepts padded or unpadded standard base64 with embedded
// whitespace, as some gateways wrap or trim the payload.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
