package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/DeafMist/podcast-radar/internal/logger"
	"github.com/DeafMist/podcast-radar/internal/models"
)

// Options configure the feed adapter.
type Options struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// Adapter reads a podcast feed and turns its items into episode metadata.
type Adapter struct {
	url    string
	parser *gofeed.Parser
	log    *slog.Logger
}

// New creates a feed adapter for a single feed URL.
func New(opts Options, log *slog.Logger) *Adapter {
	parser := gofeed.NewParser()
	parser.Client = opts.Client
	if parser.Client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		parser.Client = &http.Client{Timeout: timeout}
	}
	if opts.UserAgent != "" {
		parser.UserAgent = opts.UserAgent
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Adapter{url: opts.URL, parser: parser, log: log}
}

// Fetch downloads and parses the feed, returning its raw items in feed order.
func (a *Adapter) Fetch(ctx context.Context) ([]*gofeed.Item, error) {
	f, err := a.parser.ParseURLWithContext(a.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", a.url, err)
	}
	if f == nil {
		return nil, fmt.Errorf("fetch feed %s: empty document", a.url)
	}
	return f.Items, nil
}

// Episodes fetches the feed and normalizes every item that points at downloadable media.
// Items without an enclosure are skipped. A repeated id keeps its first occurrence.
func (a *Adapter) Episodes(ctx context.Context) ([]models.EpisodeMetadata, error) {
	items, err := a.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	episodes := make([]models.EpisodeMetadata, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		ep, ok := Normalize(item)
		if !ok {
			if item != nil {
				a.log.Debug("skip feed entry without media", slog.String("title", item.Title))
			}
			continue
		}
		if _, dup := seen[ep.ID]; dup {
			a.log.Warn("duplicate episode id in feed", slog.String("episode_id", ep.ID))
			continue
		}
		seen[ep.ID] = struct{}{}
		episodes = append(episodes, ep)
	}

	a.log.Info("feed loaded",
		slog.Int("entries", len(items)),
		slog.Int("episodes", len(episodes)),
	)
	return episodes, nil
}

// Normalize converts a raw feed item. It reports false when the item has no
// enclosure link or no stable identifier.
func Normalize(item *gofeed.Item) (models.EpisodeMetadata, bool) {
	if item == nil {
		return models.EpisodeMetadata{}, false
	}

	mediaURL := enclosureURL(item)
	id := strings.TrimSpace(item.GUID)
	if mediaURL == "" || id == "" {
		return models.EpisodeMetadata{}, false
	}

	ep := models.EpisodeMetadata{
		ID:          id,
		Title:       strings.TrimSpace(item.Title),
		Summary:     strings.TrimSpace(item.Description),
		MediaURL:    mediaURL,
		PublishedAt: item.Published,
	}

	if it := item.ITunesExt; it != nil {
		ep.EpisodeNumber = parseEpisodeNumber(it.Episode)
		ep.DurationLabel = strings.TrimSpace(it.Duration)
		if ep.Summary == "" {
			ep.Summary = strings.TrimSpace(it.Summary)
		}
	}

	return ep, true
}

func enclosureURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if u := strings.TrimSpace(enc.URL); u != "" {
			return u
		}
	}
	return ""
}

func parseEpisodeNumber(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
