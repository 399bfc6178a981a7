package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// maxMessageLength is the Bot API limit for sendMessage text.
const maxMessageLength = 4096

type TelegramAPI struct {
	token   string
	baseURL string
	client  *resty.Client
}

func NewTelegramAPI(token, baseURL string) *TelegramAPI {
	return &TelegramAPI{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  resty.New(),
	}
}

// SendMessage sends a message to a Telegram chat, truncated to the API limit
func (t *TelegramAPI) SendMessage(ctx context.Context, requestID string, chatID int64, replyTo int, text string) error {
	token := t.token
	if token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	reply := SendMessageRequest{
		ChatID:           chatID,
		Text:             truncate(text, maxMessageLength),
		ReplyToMessageID: replyTo,
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, token)
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Request-ID", requestID).
		SetBody(reply).
		Post(url)

	if err != nil {
		return fmt.Errorf("http call to telegram failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("telegram returned non-2xx status: %d", resp.StatusCode())
	}

	return nil
}

// GetFileURL resolves a file_id to a download URL via getFile
func (t *TelegramAPI) GetFileURL(ctx context.Context, requestID, fileID string) (string, error) {
	token := t.token
	if token == "" {
		return "", fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	var fileResponse GetFileResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetQueryParam("file_id", fileID).
		SetResult(&fileResponse).
		Get(fmt.Sprintf("%s/bot%s/getFile", t.baseURL, token))

	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("telegram getFile returned non-2xx status: %d", resp.StatusCode())
	}

	if !fileResponse.OK || fileResponse.Result.FilePath == "" {
		return "", fmt.Errorf("telegram API returned error for file_id: %s", fileID)
	}

	return fmt.Sprintf("%s/file/bot%s/%s", t.baseURL, token, fileResponse.Result.FilePath), nil
}

// Download fetches a file and returns its bytes and content type. At most
// limit bytes are accepted.
func (t *TelegramAPI) Download(ctx context.Context, requestID, url string, limit int64) ([]byte, string, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, "", fmt.Errorf("telegram file download returned status: %d", resp.StatusCode())
	}
	body := resp.Body()
	if limit > 0 && int64(len(body)) > limit {
		return nil, "", fmt.Errorf("file is %d bytes, limit is %d", len(body), limit)
	}
	contentType := resp.Header().Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
	}
	return body, contentType, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
