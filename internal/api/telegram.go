package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/naseer2426/ocr-server/internal/logging"
	"github.com/naseer2426/ocr-server/internal/pipeline"
	"github.com/naseer2426/ocr-server/internal/stats"
	"github.com/naseer2426/ocr-server/internal/telegram"
)

const (
	helpReply   = "Send me a photo or an image file and I will reply with the text in it."
	noTextReply = "No text found in the image."
)

type TelegramWebhook struct {
	Pipeline       Recognizer
	TelegramAPI    *telegram.TelegramAPI
	Stats          *stats.Store
	Log            logrus.FieldLogger
	MaxUploadBytes int64
}

func (t *TelegramWebhook) TelegramWebhook(c *gin.Context) {
	requestID := requestid.Get(c)
	log := logging.FromContext(t.Log, c)

	update, err := t.parseBody(c)
	if err != nil {
		log.WithError(err).Warn("telegram webhook: bad update")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if update.Message == nil || (update.Message.From != nil && update.Message.From.IsBot) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	msg := update.Message

	reply := t.recognize(c, msg)
	if err := t.TelegramAPI.SendMessage(c.Request.Context(), requestID, msg.Chat.ID, msg.MessageID, reply); err != nil {
		log.WithError(err).Error("telegram webhook: failed to send OCR result")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send OCR result"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// recognize returns the text to send back: OCR output, or a message the
// user can act on when there is no image or recognition failed.
func (t *TelegramWebhook) recognize(c *gin.Context, msg *telegram.Message) string {
	requestID := requestid.Get(c)
	log := logging.FromContext(t.Log, c)
	ctx := c.Request.Context()

	fileID, ok := msg.FileID()
	if !ok {
		return helpReply
	}

	url, err := t.TelegramAPI.GetFileURL(ctx, requestID, fileID)
	if err != nil {
		log.WithError(err).Error("telegram webhook: failed to resolve file")
		return "Could not fetch the image from Telegram, please try again."
	}
	data, contentType, err := t.TelegramAPI.Download(ctx, requestID, url, t.MaxUploadBytes)
	if err != nil {
		log.WithError(err).Error("telegram webhook: failed to download file")
		return "Could not fetch the image from Telegram, please try again."
	}
	if msg.Document != nil && msg.Document.MimeType != "" {
		contentType = msg.Document.MimeType
	}

	res, err := t.Pipeline.Process(ctx, requestID, pipeline.ImageInput{Data: data, ContentType: contentType}, pipeline.Params{})
	if err != nil {
		e := pipeline.AsError(err)
		t.Stats.RecordFailure(string(e.Kind))
		log.WithError(err).WithField("kind", e.Kind).Warn("telegram webhook: ocr failed")
		return fmt.Sprintf("Sorry, I could not read that image: %s", e.Message)
	}
	t.Stats.RecordSuccess(0)
	if res.Text == "" {
		return noTextReply
	}
	return res.Text
}

func (t *TelegramWebhook) parseBody(c *gin.Context) (*telegram.Update, error) {
	var update telegram.Update
	bodyBytes, err := c.GetRawData()
	if err != nil {
		return nil, errors.New("failed to read body")
	}
	if err := json.Unmarshal(bodyBytes, &update); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &update, nil
}
