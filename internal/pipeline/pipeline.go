// Package pipeline turns an uploaded image into cleaned OCR text: validate,
// decode, recognize on the worker pool, post-process.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/naseer2426/ocr-server/internal/imaging"
	"github.com/naseer2426/ocr-server/internal/ocr"
	"github.com/naseer2426/ocr-server/internal/worker"
)

// ImageInput is the raw upload and its declared content type.
type ImageInput struct {
	Data        []byte
	ContentType string
}

// Params are per-request overrides.
type Params struct {
	// MinConfidence in 0..100 replaces the configured threshold when set.
	MinConfidence *float64
}

type Options struct {
	Language       string
	Timeout        time.Duration
	MaxImagePixels int
	// MinConfidence in 0..100; fragments at or below it are dropped.
	MinConfidence float64
}

// Pipeline holds the shared engine handle. It has no per-request state and
// is safe for concurrent use.
type Pipeline struct {
	engine ocr.Engine
	pool   *worker.Pool
	opts   Options
	log    logrus.FieldLogger
}

func New(engine ocr.Engine, pool *worker.Pool, opts Options, log logrus.FieldLogger) *Pipeline {
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Pipeline{engine: engine, pool: pool, opts: opts, log: log}
}

// EngineName reports the name of the configured engine.
func (p *Pipeline) EngineName() string { return p.engine.Name() }

// Validate checks the input shape without decoding it and returns the
// parsed media type.
func (p *Pipeline) Validate(in ImageInput) (string, error) {
	if len(in.Data) == 0 {
		return "", newError(KindInvalidInput, "request body is empty", nil)
	}
	mt, err := imaging.MediaType(in.ContentType)
	if err != nil {
		return "", newError(KindUnsupportedFormat, "content type must be one of the supported image types", err)
	}
	if !imaging.Supported(mt) {
		return "", newError(KindUnsupportedFormat, fmt.Sprintf("content type %q is not a supported image type", mt), nil)
	}
	return mt, nil
}

// Process runs the whole pipeline. Every returned error is an *Error.
func (p *Pipeline) Process(ctx context.Context, requestID string, in ImageInput, params Params) (ocr.Result, error) {
	log := p.log.WithField("request_id", requestID)

	if _, err := p.Validate(in); err != nil {
		return ocr.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	img, err := imaging.Prepare(in.Data, p.opts.MaxImagePixels)
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		return ocr.Result{}, newError(KindEngineFailure, "image is too large to process", err)
	case err != nil:
		return ocr.Result{}, newError(KindDecodeFailure, "image data is corrupt or truncated", err)
	}
	log.WithFields(logrus.Fields{
		"format": img.Format,
		"width":  img.Width,
		"height": img.Height,
	}).Debug("image decoded")

	if requestID == "" {
		requestID = uuid.NewString()
	}
	input := ocr.Input{
		ID:        requestID,
		Image:     img.Data,
		MediaType: img.MediaType,
		Languages: []string{p.opts.Language},
	}

	start := time.Now()
	raw, err := worker.Submit(ctx, p.pool, func() (ocr.Result, error) {
		return p.engine.Recognize(ctx, input)
	})
	if err != nil {
		return ocr.Result{}, p.engineError(ctx, err)
	}
	log.WithFields(logrus.Fields{
		"engine":      p.engine.Name(),
		"blocks":      len(raw.Blocks),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("engine finished")

	threshold := p.opts.MinConfidence
	if params.MinConfidence != nil {
		threshold = *params.MinConfidence
	}
	res := ocr.Clean(raw, threshold/100)
	res.InputID = requestID
	if res.Engine == "" {
		res.Engine = p.engine.Name()
	}
	if res.Language == "" {
		res.Language = p.opts.Language
	}
	return res, nil
}

func (p *Pipeline) engineError(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newError(KindTimeout, fmt.Sprintf("text recognition did not finish within %s", p.opts.Timeout), err)
	case errors.Is(err, context.Canceled):
		return newError(KindTimeout, "request was cancelled before recognition finished", err)
	default:
		return newError(KindEngineFailure, "text recognition failed", err)
	}
}
