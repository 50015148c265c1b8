package processing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

const nounPOS = "名詞"

// NounExtractor collects the surface forms of noun tokens from Japanese text.
type NounExtractor struct {
	tok  *tokenizer.Tokenizer
	mode tokenizer.TokenizeMode
}

// NewNounExtractor loads the IPA dictionary. mode is one of normal, search or
// extended; empty means normal, which keeps compound nouns whole.
func NewNounExtractor(mode string) (*NounExtractor, error) {
	m, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}
	return &NounExtractor{tok: t, mode: m}, nil
}

// Extract returns each distinct noun surface form in order of first appearance.
func (n *NounExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var nouns []string
	for _, token := range n.tok.Analyze(text, n.mode) {
		pos := token.POS()
		if len(pos) == 0 || pos[0] != nounPOS {
			continue
		}
		surface := strings.TrimSpace(token.Surface)
		if surface == "" {
			continue
		}
		if _, ok := seen[surface]; ok {
			continue
		}
		seen[surface] = struct{}{}
		nouns = append(nouns, surface)
	}
	return nouns, nil
}

func parseMode(raw string) (tokenizer.TokenizeMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "normal":
		return tokenizer.Normal, nil
	case "search":
		return tokenizer.Search, nil
	case "extended":
		return tokenizer.Extended, nil
	default:
		return tokenizer.Normal, fmt.Errorf("unknown tokenize mode %q", raw)
	}
}
