package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/naseer2426/ocr-server/internal/logging"
	"github.com/naseer2426/ocr-server/internal/ocr"
	"github.com/naseer2426/ocr-server/internal/pipeline"
	"github.com/naseer2426/ocr-server/internal/receipt"
)

type BlockResponse struct {
	Text       string      `json:"text"`
	Confidence *float64    `json:"confidence,omitempty"`
	Bounds     *ocr.Region `json:"bounds,omitempty"`
}

type OCRResponse struct {
	Status     string           `json:"status"`
	RequestID  string           `json:"request_id"`
	Text       string           `json:"text"`
	Blocks     []BlockResponse  `json:"blocks"`
	Language   string           `json:"language"`
	Engine     string           `json:"engine"`
	DurationMS int64            `json:"duration_ms"`
	Receipt    *receipt.Receipt `json:"receipt,omitempty"`
}

type ErrorBody struct {
	Kind    pipeline.Kind `json:"kind"`
	Message string        `json:"message"`
}

type ErrorResponse struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Error     ErrorBody `json:"error"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindInvalidInput:
		return http.StatusBadRequest
	case pipeline.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case pipeline.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case pipeline.KindDecodeFailure:
		return http.StatusUnprocessableEntity
	case pipeline.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func newOCRResponse(requestID string, res ocr.Result, layout bool, elapsed time.Duration) OCRResponse {
	blocks := make([]BlockResponse, 0, len(res.Blocks))
	for _, b := range res.Blocks {
		br := BlockResponse{Text: b.Text}
		if res.Scored {
			conf := b.Confidence
			br.Confidence = &conf
		}
		if layout && !b.Bounds.IsEmpty() {
			bounds := b.Bounds
			br.Bounds = &bounds
		}
		blocks = append(blocks, br)
	}
	return OCRResponse{
		Status:     "ok",
		RequestID:  requestID,
		Text:       res.Text,
		Blocks:     blocks,
		Language:   res.Language,
		Engine:     res.Engine,
		DurationMS: elapsed.Milliseconds(),
	}
}

// respondError writes the client-safe part of err. The full error, cause
// included, only goes to the log.
func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	e := pipeline.AsError(err)
	status := StatusFor(e.Kind)

	entry := logging.FromContext(log, c).WithField("kind", e.Kind).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("ocr request failed")
	} else {
		entry.Info("ocr request rejected")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Status:    "error",
		RequestID: requestid.Get(c),
		Error:     ErrorBody{Kind: e.Kind, Message: e.Message},
	})
}
