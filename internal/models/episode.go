package models

import (
	"sort"
	"strings"
)

// EpisodeMetadata describes one downloadable feed entry.
type EpisodeMetadata struct {
	ID            string
	Title         string
	EpisodeNumber int
	Summary       string
	DurationLabel string
	MediaURL      string
	PublishedAt   string
}

// MediaAsset is the on-disk audio downloaded for a single episode.
type MediaAsset struct {
	EpisodeID string
	Path      string
}

// IndexDocument represents the canonical structure stored in the search index.
// Field names match the documents written by earlier versions of the indexer.
type IndexDocument struct {
	ObjectID      string   `json:"objectID"`
	Title         string   `json:"title"`
	EpisodeNumber int      `json:"episodeNumber"`
	Summary       string   `json:"summary,omitempty"`
	DurationLabel string   `json:"length,omitempty"`
	MediaURL      string   `json:"mediaUrl"`
	PublishedAt   string   `json:"published"`
	Keywords      []string `json:"nouns"`
}

// BuildDocument assembles the index document for an episode.
// Keywords are deduplicated and sorted so equal inputs give equal documents.
func BuildDocument(ep EpisodeMetadata, keywords []string) IndexDocument {
	return IndexDocument{
		ObjectID:      ep.ID,
		Title:         ep.Title,
		EpisodeNumber: ep.EpisodeNumber,
		Summary:       ep.Summary,
		DurationLabel: ep.DurationLabel,
		MediaURL:      ep.MediaURL,
		PublishedAt:   ep.PublishedAt,
		Keywords:      normalizeKeywords(keywords),
	}
}

// Minimal returns a copy without the optional descriptive fields.
func (d IndexDocument) Minimal() IndexDocument {
	d.Summary = ""
	d.DurationLabel = ""
	return d
}

func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}
