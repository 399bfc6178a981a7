// Package receipt pulls structured fuel-receipt fields out of OCR text.
package receipt

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
)

const (
	StatusProcessed    = "processed"
	StatusManualReview = "manual_review"

	// receipts at or below this confidence need a human to confirm them
	reviewThreshold = 0.8

	fallbackConfidence = 0.3
)

// Receipt is the structured view of a fuel receipt. Numeric fields are nil
// when the value could not be found.
type Receipt struct {
	StationName    string   `json:"station_name"`
	Address        string   `json:"address"`
	Date           string   `json:"date,omitempty"`
	Time           string   `json:"time,omitempty"`
	FuelType       string   `json:"fuel_type,omitempty"`
	Quantity       *float64 `json:"quantity"`
	PricePerUnit   *float64 `json:"price_per_unit"`
	TotalAmount    *float64 `json:"total_amount"`
	Confidence     float64  `json:"confidence"`
	Status         string   `json:"status"`
	ExtractionMode string   `json:"extraction_mode"`
}

// Extractor uses an LLM when one is configured and falls back to pattern
// matching when it is not, or when the model reply is unusable.
type Extractor struct {
	llm llms.Model
	log logrus.FieldLogger
}

// NewExtractor accepts a nil llm for pattern-only extraction.
func NewExtractor(llm llms.Model, log logrus.FieldLogger) *Extractor {
	return &Extractor{llm: llm, log: log}
}

// Extract never fails: the fallback always produces a receipt, possibly
// with every field empty.
func (e *Extractor) Extract(ctx context.Context, requestID, text string) Receipt {
	log := e.log.WithField("request_id", requestID)
	if e.llm != nil && strings.TrimSpace(text) != "" {
		r, err := e.extractWithLLM(ctx, text)
		if err == nil {
			return finish(r, "llm")
		}
		log.WithError(err).Warn("llm extraction failed, using pattern fallback")
	}
	return finish(Fallback(text), "pattern")
}

func finish(r Receipt, mode string) Receipt {
	r.ExtractionMode = mode
	if r.Confidence > reviewThreshold {
		r.Status = StatusProcessed
	} else {
		r.Status = StatusManualReview
	}
	return r
}

var (
	amountPattern   = regexp.MustCompile(`\$?(\d+\.\d{2})\b`)
	quantityPattern = regexp.MustCompile(`(?i)(\d+\.\d{1,3})\s*(?:GAL(?:LONS?)?|L|LTRS?|LITRES?|LITERS?)\b`)
	datePattern     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)
	fuelPattern     = regexp.MustCompile(`(?i)\b(diesel|petrol|premium|unleaded|regular|cng)\b`)
)

// Fallback extracts what it can with regular expressions. The last amount on
// the receipt is taken as the total.
func Fallback(text string) Receipt {
	r := Receipt{Confidence: fallbackConfidence}

	if amounts := amountPattern.FindAllStringSubmatch(text, -1); len(amounts) > 0 {
		r.TotalAmount = ParseAmount(amounts[len(amounts)-1][1])
	}
	if m := quantityPattern.FindStringSubmatch(text); m != nil {
		r.Quantity = ParseAmount(m[1])
	}
	if r.Quantity != nil && r.TotalAmount != nil && *r.Quantity > 0 {
		unit := round(*r.TotalAmount / *r.Quantity, 3)
		r.PricePerUnit = &unit
	}
	if m := datePattern.FindStringSubmatch(text); m != nil {
		r.Date = m[1]
	}
	if m := fuelPattern.FindStringSubmatch(text); m != nil {
		r.FuelType = strings.ToLower(m[1])
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			r.StationName = line
			break
		}
	}
	return r
}

var nonNumeric = regexp.MustCompile(`[^\d.\-]`)

// ParseAmount converts "12.34", "$12.34" or "1,234.56" to a float. With more
// than one dot the last one is the decimal separator. Returns nil when no
// number can be read.
func ParseAmount(s string) *float64 {
	s = nonNumeric.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return nil
	}
	if strings.Count(s, ".") > 1 {
		i := strings.LastIndex(s, ".")
		s = strings.ReplaceAll(s[:i], ".", "") + s[i:]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
