package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

var _ Engine = &MistralOCR{}

// MistralOCRRequest represents the request payload for Mistral OCR API
type MistralOCRRequest struct {
	Model              string   `json:"model"`
	Document           Document `json:"document"`
	IncludeImageBase64 bool     `json:"include_image_base64"`
}

// Document represents the document structure in the request
type Document struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

// MistralOCRResponse represents the response from Mistral OCR API
type MistralOCRResponse struct {
	Pages     []Page    `json:"pages"`
	Model     string    `json:"model"`
	UsageInfo UsageInfo `json:"usage_info"`
}

// Page represents a page in the OCR response
type Page struct {
	Index      int        `json:"index"`
	Markdown   string     `json:"markdown"`
	Dimensions Dimensions `json:"dimensions"`
}

// Dimensions represents the dimensions of a page
type Dimensions struct {
	DPI    int `json:"dpi"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

// UsageInfo represents usage information in the response
type UsageInfo struct {
	PagesProcessed int `json:"pages_processed"`
	DocSizeBytes   int `json:"doc_size_bytes"`
}

// MistralValidationError represents validation error response
type MistralValidationError struct {
	Detail []ValidationDetail `json:"detail"`
}

// ValidationDetail represents a validation error detail
type ValidationDetail struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// MistralOCR sends images to the Mistral OCR API inline as data URLs.
type MistralOCR struct {
	apiKey string
	model  string
	client *resty.Client
}

func NewMistralOCR(apiKey, baseURL, model string) *MistralOCR {
	return &MistralOCR{
		apiKey: apiKey,
		model:  model,
		client: resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")),
	}
}

func (m *MistralOCR) Name() string { return "mistral" }

// Recognize uploads the image and converts the returned markdown into blocks.
// The API reports no confidences, so results are never Scored.
func (m *MistralOCR) Recognize(ctx context.Context, in Input) (Result, error) {
	request := MistralOCRRequest{
		Model: m.model,
		Document: Document{
			Type:     "image_url",
			ImageURL: dataURL(in.MediaType, in.Image),
		},
		IncludeImageBase64: false,
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+m.apiKey).
		SetHeader("X-Request-ID", in.ID).
		SetBody(request).
		Post("/v1/ocr")
	if err != nil {
		return Result{}, fmt.Errorf("failed to make request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var ocrResponse MistralOCRResponse
		if err := json.Unmarshal(resp.Body(), &ocrResponse); err != nil {
			return Result{}, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(ocrResponse.Pages) != 1 {
			return Result{}, fmt.Errorf("expected exactly 1 page, got %d", len(ocrResponse.Pages))
		}
		return Result{
			InputID:  in.ID,
			Blocks:   MarkdownBlocks([]byte(ocrResponse.Pages[0].Markdown)),
			Language: firstLanguage(in.Languages),
			Engine:   m.Name(),
		}, nil

	case http.StatusUnprocessableEntity:
		var validationError MistralValidationError
		if err := json.Unmarshal(resp.Body(), &validationError); err != nil {
			return Result{}, fmt.Errorf("failed to unmarshal validation error: %w", err)
		}
		if len(validationError.Detail) > 0 {
			return Result{}, fmt.Errorf("validation error: %s", validationError.Detail[0].Msg)
		}
		return Result{}, fmt.Errorf("validation error: unknown validation error")

	default:
		return Result{}, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
}

func dataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}
