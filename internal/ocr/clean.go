package ocr

import "strings"

// Clean normalizes whitespace, drops fragments whose confidence is at or
// below minConfidence (only when the engine reported confidences), removes
// empty blocks and rebuilds Text from what is left. Blocks keep the order the
// engine reported. The input is not modified.
func Clean(res Result, minConfidence float64) Result {
	out := res
	out.Blocks = make([]Block, 0, len(res.Blocks))
	for _, b := range res.Blocks {
		if cleaned, ok := cleanBlock(b, res.Scored, minConfidence); ok {
			out.Blocks = append(out.Blocks, cleaned)
		}
	}

	texts := make([]string, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		texts = append(texts, b.Text)
	}
	out.Text = strings.Join(texts, "\n")
	return out
}

func cleanBlock(b Block, scored bool, minConfidence float64) (Block, bool) {
	if len(b.Words) == 0 {
		if scored && b.Confidence <= minConfidence {
			return Block{}, false
		}
		b.Text = NormalizeText(b.Text)
		return b, b.Text != ""
	}

	words := make([]Word, 0, len(b.Words))
	parts := make([]string, 0, len(b.Words))
	var sum float64
	for _, w := range b.Words {
		text := NormalizeText(w.Text)
		if text == "" {
			continue
		}
		if scored && w.Confidence <= minConfidence {
			continue
		}
		w.Text = text
		words = append(words, w)
		parts = append(parts, text)
		sum += w.Confidence
	}
	if len(words) == 0 {
		return Block{}, false
	}

	b.Words = words
	b.Text = strings.Join(parts, " ")
	if scored {
		b.Confidence = sum / float64(len(words))
	}
	return b, true
}

// NormalizeText collapses runs of blanks inside each line, trims lines and
// drops empty ones. Line breaks between non-empty lines are kept.
func NormalizeText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
