package receipt

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
)

const sampleText = `SHELL STATION
123 Main St
2024-03-05 14:22
DIESEL
12.500 GAL
PRICE/GAL $3.368
TOTAL $42.10`

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"12.34":     12.34,
		"$12.34":    12.34,
		"1,234.56":  1234.56,
		"₹ 1.234.5": 1234.5,
		"  7 ":      7,
		"-3.5":      -3.5,
	}
	for in, want := range cases {
		got := ParseAmount(in)
		if got == nil || *got != want {
			t.Fatalf("ParseAmount(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "n/a", "-", "."} {
		if got := ParseAmount(bad); got != nil {
			t.Fatalf("ParseAmount(%q) = %v, want nil", bad, *got)
		}
	}
}

func TestFallback(t *testing.T) {
	r := Fallback(sampleText)
	if r.TotalAmount == nil || *r.TotalAmount != 42.10 {
		t.Fatalf("unexpected total: %v", r.TotalAmount)
	}
	if r.Quantity == nil || *r.Quantity != 12.5 {
		t.Fatalf("unexpected quantity: %v", r.Quantity)
	}
	if r.PricePerUnit == nil || *r.PricePerUnit != 3.368 {
		t.Fatalf("unexpected unit price: %v", r.PricePerUnit)
	}
	if r.Date != "2024-03-05" || r.FuelType != "diesel" || r.StationName != "SHELL STATION" {
		t.Fatalf("unexpected fields: %+v", r)
	}
	if r.Confidence != fallbackConfidence {
		t.Fatalf("unexpected confidence: %f", r.Confidence)
	}
}

func TestFallbackEmpty(t *testing.T) {
	r := Fallback("")
	if r.TotalAmount != nil || r.Quantity != nil || r.StationName != "" {
		t.Fatalf("expected empty receipt, got %+v", r)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"plain":      `{"total_amount": "42.10"}`,
		"fenced":     "Here you go:\n```json\n{\"total_amount\": \"42.10\"}\n```",
		"commentary": `Sure! {"total_amount": "42.10"} Let me know if you need more.`,
		"after bad":  `{not json} then {"total_amount": "42.10"}`,
	}
	for name, in := range cases {
		m := ExtractJSON(in)
		if m == nil || m["total_amount"] != "42.10" {
			t.Fatalf("%s: ExtractJSON() = %v", name, m)
		}
	}
	for _, in := range []string{"", "no json here", "[1, 2, 3]", "{"} {
		if m := ExtractJSON(in); m != nil {
			t.Fatalf("ExtractJSON(%q) = %v, want nil", in, m)
		}
	}
}

func TestExtractWithLLM(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n" + `{
		"Station_Name": "Shell",
		"transaction_date": "2024-03-05",
		"fuel_type": "Diesel",
		"quantity": "12.500",
		"price_per_unit": 3.368,
		"total_amount": "$42.10",
		"address": null,
		"confidence": 1.7
	}` + "\n```"}
	r := NewExtractor(llm, quietLogger()).Extract(context.Background(), "req", sampleText)

	if llm.calls != 1 {
		t.Fatalf("expected one llm call, got %d", llm.calls)
	}
	if r.ExtractionMode != "llm" || r.StationName != "Shell" || r.FuelType != "diesel" {
		t.Fatalf("unexpected receipt: %+v", r)
	}
	if r.TotalAmount == nil || *r.TotalAmount != 42.10 || r.PricePerUnit == nil || *r.PricePerUnit != 3.368 {
		t.Fatalf("unexpected amounts: %+v", r)
	}
	if r.Confidence != 1 || r.Status != StatusProcessed {
		t.Fatalf("confidence should clamp to 1 and be processed: %+v", r)
	}
	if r.Address != "" {
		t.Fatalf("null address should be empty, got %q", r.Address)
	}
}

func TestExtractFallsBack(t *testing.T) {
	for name, llm := range map[string]*fakeLLM{
		"error":   {err: errors.New("connection refused")},
		"no json": {reply: "I could not read this receipt."},
	} {
		r := NewExtractor(llm, quietLogger()).Extract(context.Background(), "req", sampleText)
		if r.ExtractionMode != "pattern" || r.Status != StatusManualReview {
			t.Fatalf("%s: expected pattern fallback, got %+v", name, r)
		}
		if r.TotalAmount == nil || *r.TotalAmount != 42.10 {
			t.Fatalf("%s: fallback total missing: %+v", name, r)
		}
	}
}

func TestExtractWithoutLLM(t *testing.T) {
	r := NewExtractor(nil, quietLogger()).Extract(context.Background(), "req", sampleText)
	if r.ExtractionMode != "pattern" {
		t.Fatalf("unexpected mode %s", r.ExtractionMode)
	}

	llm := &fakeLLM{reply: "{}"}
	NewExtractor(llm, quietLogger()).Extract(context.Background(), "req", "   ")
	if llm.calls != 0 {
		t.Fatalf("llm should not be called for empty text")
	}
}
