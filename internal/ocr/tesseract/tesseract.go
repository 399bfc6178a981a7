// Package tesseract provides an ocr.Engine backed by libtesseract through
// gosseract.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"os/exec"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/naseer2426/ocr-server/internal/ocr"
)

var _ ocr.Engine = &Engine{}

// Options configure every client the engine creates.
type Options struct {
	Languages      []string
	TessdataPrefix string
	// PageSegMode is the tesseract --psm value; zero leaves the library default.
	PageSegMode int
	// MaxIdle bounds the number of initialized clients kept between calls.
	MaxIdle int
}

// Engine is safe for concurrent use. A gosseract client is not, so each
// call borrows one from an idle pool and returns it afterwards.
type Engine struct {
	opts      Options
	newClient func() *gosseract.Client
	idle      chan *gosseract.Client

	mu     sync.Mutex
	closed bool
}

func NewEngine(opts Options) *Engine {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	if opts.MaxIdle < 1 {
		opts.MaxIdle = 1
	}
	return &Engine{
		opts:      opts,
		newClient: gosseract.NewClient,
		idle:      make(chan *gosseract.Client, opts.MaxIdle),
	}
}

func (e *Engine) Name() string { return "tesseract" }

// Available reports whether the tesseract binary is on PATH. The library and
// the binary ship in the same package, so this is a cheap install check.
func Available() bool {
	_, err := exec.LookPath("tesseract")
	return err == nil
}

// Version returns the linked libtesseract version.
func Version() string {
	return gosseract.Version()
}

// Recognize runs OCR on in.Image and reports one block per text line with
// per-word confidences. It blocks for the duration of the call; ctx is only
// checked before work starts since libtesseract cannot be interrupted.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c, err := e.acquire()
	if err != nil {
		return ocr.Result{}, err
	}
	res, err := e.recognizeWithClient(c, in)
	if err != nil {
		// a client that failed mid-call may hold a half-set image
		c.Close()
		return ocr.Result{}, err
	}
	e.release(c)
	return res, nil
}

// Close releases idle clients. In-flight calls close their client on return.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.idle)
	for c := range e.idle {
		c.Close()
	}
	return nil
}

func (e *Engine) acquire() (*gosseract.Client, error) {
	select {
	case c, ok := <-e.idle:
		if ok {
			return c, nil
		}
		return nil, fmt.Errorf("tesseract engine is closed")
	default:
	}

	c := e.newClient()
	if e.opts.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.opts.TessdataPrefix); err != nil {
			c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(e.opts.Languages...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if e.opts.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.opts.PageSegMode)); err != nil {
			c.Close()
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	return c, nil
}

func (e *Engine) release(c *gosseract.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		c.Close()
		return
	}
	select {
	case e.idle <- c:
	default:
		c.Close()
	}
}

func (e *Engine) recognizeWithClient(c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	lines, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize lines: %w", err)
	}
	words, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize words: %w", err)
	}

	return ocr.Result{
		InputID:  in.ID,
		Blocks:   buildBlocks(lines, words),
		Scored:   true,
		Language: e.opts.Languages[0],
		Engine:   e.Name(),
	}, nil
}

// buildBlocks turns line boxes into blocks and attaches each word to the
// first line containing its center. Both inputs are in reading order.
func buildBlocks(lines, words []gosseract.BoundingBox) []ocr.Block {
	blocks := make([]ocr.Block, 0, len(lines))
	for _, l := range lines {
		blocks = append(blocks, ocr.Block{
			Text:       l.Word,
			Bounds:     region(l.Box),
			Confidence: l.Confidence / 100,
		})
	}
	for _, w := range words {
		center := image.Pt((w.Box.Min.X+w.Box.Max.X)/2, (w.Box.Min.Y+w.Box.Max.Y)/2)
		for i := range lines {
			if center.In(lines[i].Box) {
				blocks[i].Words = append(blocks[i].Words, ocr.Word{
					Text:       w.Word,
					Bounds:     region(w.Box),
					Confidence: w.Confidence / 100,
				})
				break
			}
		}
	}
	return blocks
}

func region(r image.Rectangle) ocr.Region {
	return ocr.Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}
