package processing

import (
	"cmp"
	"html"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

var (
	linkPattern    = regexp.MustCompile(`https?://\S+`)
	nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

// Function words plus the fillers speech recognition writes out verbatim.
var stopwords = toSet(
	"a", "an", "the", "to", "in", "for", "of", "and", "or", "is", "it", "that", "this",
	"with", "you", "we", "on", "be", "are", "was", "so", "but", "not", "have", "just",
	"like", "about", "they", "what", "there", "um", "uh", "yeah", "okay", "really",
	"gonna", "kind", "sort", "know", "mean", "right",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// RemoveURLs replaces every http(s) link with a space.
func RemoveURLs(input string) string {
	return linkPattern.ReplaceAllString(input, " ")
}

// CleanText decodes HTML entities and drops links and punctuation, leaving
// single-space separated words.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	s := RemoveURLs(html.UnescapeString(input))
	s = nonWordPattern.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// ExtractKeywords ranks the words of text by frequency, most frequent first
// with ties broken alphabetically, and keeps at most limit of them. Words
// shorter than minLen runes and stop words are ignored.
func ExtractKeywords(text string, limit, minLen int) []string {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(CleanText(text))) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(word)) < minLen {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		counts[word]++
	}
	if len(counts) == 0 {
		return nil
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	if limit > 0 && limit < len(words) {
		words = words[:limit]
	}
	return words
}
