package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewOllama connects to an Ollama server. The model is asked for JSON output.
func NewOllama(serverURL, model string) (llms.Model, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
		ollama.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return llm, nil
}

const promptTemplate = `You are an assistant specialized in extracting fuel receipt data.
Analyze this fuel station receipt text and extract key information.

Receipt text:
%s

Extract the following information and return ONLY a valid JSON object:
{
    "station_name": "station name if found",
    "transaction_date": "YYYY-MM-DD format if found",
    "transaction_time": "HH:MM format if found",
    "fuel_type": "petrol/diesel/premium etc",
    "quantity": "number only, decimal format",
    "price_per_unit": "price per unit, decimal format",
    "total_amount": "total cost, decimal format",
    "address": "station address if available",
    "confidence": "confidence score 0.0-1.0 based on text clarity"
}

If any field cannot be determined, use null for that field.
Return only the JSON object, no other text.`

func (e *Extractor) extractWithLLM(ctx context.Context, text string) (Receipt, error) {
	reply, err := llms.GenerateFromSinglePrompt(ctx, e.llm, fmt.Sprintf(promptTemplate, text), llms.WithTemperature(0))
	if err != nil {
		return Receipt{}, fmt.Errorf("generate: %w", err)
	}
	fields := ExtractJSON(reply)
	if fields == nil {
		return Receipt{}, errors.New("model reply contains no JSON object")
	}
	return fromFields(fields), nil
}

var fencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*\\})\\s*```")

// ExtractJSON finds a JSON object in a model reply: the whole reply, a
// fenced code block, or the first balanced {...} that parses.
func ExtractJSON(s string) map[string]any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if m := decodeObject(s); m != nil {
		return m
	}
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		if obj := decodeObject(m[1]); obj != nil {
			return obj
		}
	}

	depth, start := 0, -1
	for i, ch := range s {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				if obj := decodeObject(s[start : i+1]); obj != nil {
					return obj
				}
				start = -1
			}
		}
	}
	return nil
}

func decodeObject(s string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// lookup returns the first present key, matching case-insensitively.
func lookup(fields map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v
		}
	}
	for k, v := range fields {
		for _, want := range keys {
			if v != nil && strings.EqualFold(k, want) {
				return v
			}
		}
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func asNumber(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return &t
	default:
		return ParseAmount(asString(t))
	}
}

func fromFields(fields map[string]any) Receipt {
	r := Receipt{
		StationName:  asString(lookup(fields, "station_name", "station", "vendor")),
		Address:      asString(lookup(fields, "address", "station_address", "location")),
		Date:         asString(lookup(fields, "transaction_date", "date", "purchase_date")),
		Time:         asString(lookup(fields, "transaction_time", "time")),
		FuelType:     strings.ToLower(asString(lookup(fields, "fuel_type"))),
		Quantity:     asNumber(lookup(fields, "quantity", "gallons", "litres", "liters")),
		PricePerUnit: asNumber(lookup(fields, "price_per_unit", "price_per_gallon", "unit_price", "price")),
		TotalAmount:  asNumber(lookup(fields, "total_amount", "total", "amount")),
		Confidence:   0.5,
	}
	if c := asNumber(lookup(fields, "confidence", "confidence_score")); c != nil {
		r.Confidence = min(max(*c, 0), 1)
	}
	return r
}
