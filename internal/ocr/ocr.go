// Package ocr defines the engine contract used by the pipeline and the
// result model shared by every engine implementation.
package ocr

import "context"

// Region is a rectangle in pixel coordinates, origin at the top-left corner.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input is a single decoded-and-validated image handed to an engine.
type Input struct {
	// ID is echoed back in Result.InputID.
	ID string
	// Image holds the encoded image bytes in the format named by MediaType.
	Image     []byte
	MediaType string
	// Languages are traineddata names such as "eng".
	Languages []string
}

// Word is a single recognized token.
type Word struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Block is one unit of text in reading order. Engines decide the
// granularity; tesseract reports text lines, remote engines paragraphs.
type Block struct {
	Text       string
	Bounds     Region
	Confidence float64
	Words      []Word
}

// Result is the output of an engine for one Input.
type Result struct {
	InputID string
	Text    string
	Blocks  []Block
	// Scored is true when the engine reported confidences. Confidence values
	// are in [0,1] and meaningless when Scored is false.
	Scored   bool
	Language string
	Engine   string
}

// Engine recognizes text in one image. Implementations must be safe for
// concurrent use.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}
