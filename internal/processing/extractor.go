package processing

import (
	"context"
	"strings"
)

// Extractor turns transcript text into a set of keywords.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// FrequencyExtractor keeps the most frequent non stop-words of whitespace separated text.
type FrequencyExtractor struct {
	Limit  int
	MinLen int
}

// Extract implements Extractor.
func (f FrequencyExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ExtractKeywords(text, f.Limit, f.MinLen), nil
}

// ExtractorOptions select and tune the keyword extractor.
type ExtractorOptions struct {
	Language string
	Mode     string
	Limit    int
	MinLen   int
}

// NewExtractor picks the noun extractor for Japanese and the frequency extractor otherwise.
func NewExtractor(opts ExtractorOptions) (Extractor, error) {
	if strings.EqualFold(strings.TrimSpace(opts.Language), "ja") {
		return NewNounExtractor(opts.Mode)
	}
	return FrequencyExtractor{Limit: opts.Limit, MinLen: opts.MinLen}, nil
}
