package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/naseer2426/ocr-server/internal/ocr"
	"github.com/naseer2426/ocr-server/internal/pipeline"
	"github.com/naseer2426/ocr-server/internal/receipt"
	"github.com/naseer2426/ocr-server/internal/stats"
)

// multipart field carrying the image
const formField = "image"

// Recognizer is the part of the pipeline the handlers use.
type Recognizer interface {
	Process(ctx context.Context, requestID string, in pipeline.ImageInput, params pipeline.Params) (ocr.Result, error)
}

type OCRHandler struct {
	Pipeline       Recognizer
	Receipts       *receipt.Extractor
	Stats          *stats.Store
	Log            logrus.FieldLogger
	MaxUploadBytes int64
}

type ocrQuery struct {
	MinConfidence *float64 `form:"min_confidence" binding:"omitempty,min=0,max=100"`
	Layout        bool     `form:"layout"`
}

// Extract handles POST /ocr.
func (h *OCRHandler) Extract(c *gin.Context) {
	res, query, elapsed, ok := h.run(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newOCRResponse(requestid.Get(c), res, query.Layout, elapsed))
}

// Receipt handles POST /ocr/receipt: OCR followed by field extraction.
func (h *OCRHandler) Receipt(c *gin.Context) {
	res, query, elapsed, ok := h.run(c)
	if !ok {
		return
	}
	r := h.Receipts.Extract(c.Request.Context(), requestid.Get(c), res.Text)
	resp := newOCRResponse(requestid.Get(c), res, query.Layout, elapsed)
	resp.Receipt = &r
	c.JSON(http.StatusOK, resp)
}

func (h *OCRHandler) run(c *gin.Context) (ocr.Result, ocrQuery, time.Duration, bool) {
	start := time.Now()

	var query ocrQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.fail(c, pipeline.InvalidInput("min_confidence must be a number between 0 and 100", err))
		return ocr.Result{}, query, 0, false
	}

	in, err := readImage(c, h.MaxUploadBytes)
	if err != nil {
		h.fail(c, err)
		return ocr.Result{}, query, 0, false
	}

	res, err := h.Pipeline.Process(c.Request.Context(), requestid.Get(c), in, pipeline.Params{MinConfidence: query.MinConfidence})
	if err != nil {
		h.fail(c, err)
		return ocr.Result{}, query, 0, false
	}

	elapsed := time.Since(start)
	h.Stats.RecordSuccess(elapsed)
	return res, query, elapsed, true
}

func (h *OCRHandler) fail(c *gin.Context, err error) {
	h.Stats.RecordFailure(string(pipeline.KindOf(err)))
	respondError(c, h.Log, err)
}

// readImage accepts either a raw image body or a multipart form with an
// "image" file field.
func readImage(c *gin.Context, limit int64) (pipeline.ImageInput, error) {
	if limit > 0 {
		if c.Request.ContentLength > limit {
			return pipeline.ImageInput{}, pipeline.PayloadTooLarge(limit)
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	if c.ContentType() == "multipart/form-data" {
		return readMultipart(c, limit)
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return pipeline.ImageInput{}, bodyError(err, limit)
	}
	return pipeline.ImageInput{Data: data, ContentType: c.GetHeader("Content-Type")}, nil
}

func readMultipart(c *gin.Context, limit int64) (pipeline.ImageInput, error) {
	fh, err := c.FormFile(formField)
	if err != nil {
		if tooLarge(err) {
			return pipeline.ImageInput{}, pipeline.PayloadTooLarge(limit)
		}
		return pipeline.ImageInput{}, pipeline.InvalidInput("multipart form must contain an \"image\" file field", err)
	}
	f, err := fh.Open()
	if err != nil {
		return pipeline.ImageInput{}, pipeline.InvalidInput("could not read uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return pipeline.ImageInput{}, pipeline.InvalidInput("could not read uploaded file", err)
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return pipeline.ImageInput{Data: data, ContentType: contentType}, nil
}

func bodyError(err error, limit int64) error {
	if tooLarge(err) {
		return pipeline.PayloadTooLarge(limit)
	}
	return pipeline.InvalidInput("could not read request body", err)
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}
