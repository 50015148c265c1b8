package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/podcast-radar/internal/logger"
	"github.com/DeafMist/podcast-radar/internal/models"
)

// ErrNotFound is returned when a requested episode document does not exist.
var ErrNotFound = errors.New("document not found")

const scrollKeepAlive = time.Minute

// Options configure the Elasticsearch connection.
type Options struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	APIKey    string
	PageSize  int
	Transport http.RoundTripper
}

// Client wraps go-elasticsearch with helpers tailored to the episode index.
type Client struct {
	es       *elasticsearch.Client
	index    string
	pageSize int
	log      *slog.Logger
}

// SearchParams narrow the search endpoint query.
type SearchParams struct {
	Query    string
	Keywords []string
	From     int
	Size     int
	Sort     string
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64                  `json:"total"`
	Items []models.IndexDocument `json:"items"`
}

// New instantiates the Elasticsearch client.
func New(opts Options, log *slog.Logger) (*Client, error) {
	if opts.Index == "" {
		return nil, errors.New("elasticsearch index is required")
	}

	cfg := elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		APIKey:    opts.APIKey,
		Transport: opts.Transport,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if log == nil {
		log = logger.Discard()
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}

	return &Client{es: es, index: opts.Index, pageSize: pageSize, log: log}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// indexMapping keeps exact-match fields as keywords. published is stored verbatim.
var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"objectID":      map[string]any{"type": "keyword"},
			"title":         map[string]any{"type": "text"},
			"episodeNumber": map[string]any{"type": "integer"},
			"summary":       map[string]any{"type": "text"},
			"length":        map[string]any{"type": "keyword"},
			"mediaUrl":      map[string]any{"type": "keyword", "index": false},
			"published":     map[string]any{"type": "keyword"},
			"nouns":         map[string]any{"type": "keyword"},
		},
	},
}

// EnsureIndex creates the episode index with its mapping when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	payload, err := json.Marshal(indexMapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another process may have created it in between.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// Upsert creates or fully replaces the document stored under doc.ObjectID.
func (c *Client) Upsert(ctx context.Context, doc models.IndexDocument) error {
	if doc.ObjectID == "" {
		return errors.New("document objectID is empty")
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ObjectID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("index doc", res)
	}

	return nil
}

type scrollPage struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// ListIndexedIDs returns every document id in the index, following scroll pages
// until they run out. A missing index yields an empty set.
func (c *Client) ListIndexedIDs(ctx context.Context) (map[string]struct{}, error) {
	body := map[string]any{
		"_source": false,
		"size":    c.pageSize,
		"sort":    []string{"_doc"},
		"query":   map[string]any{"match_all": map[string]any{}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal scroll body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
		c.es.Search.WithScroll(scrollKeepAlive),
	)
	if err != nil {
		return nil, fmt.Errorf("start scroll: %w", err)
	}

	ids := make(map[string]struct{})
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		c.log.Info("index does not exist yet", slog.String("index", c.index))
		return ids, nil
	}

	page, err := decodeScrollPage(res)
	if err != nil {
		return nil, fmt.Errorf("start scroll: %w", err)
	}

	scrollID := page.ScrollID
	defer func() { c.clearScroll(scrollID) }()

	for len(page.Hits.Hits) > 0 {
		for _, hit := range page.Hits.Hits {
			ids[hit.ID] = struct{}{}
		}
		if len(page.Hits.Hits) < c.pageSize {
			break
		}

		res, err = c.es.Scroll(
			c.es.Scroll.WithContext(ctx),
			c.es.Scroll.WithScrollID(scrollID),
			c.es.Scroll.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}
		page, err = decodeScrollPage(res)
		if err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}

	return ids, nil
}

func decodeScrollPage(res *esapi.Response) (*scrollPage, error) {
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("scroll request", res)
	}

	var page scrollPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &page, nil
}

func (c *Client) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.es.ClearScroll(
		c.es.ClearScroll.WithContext(ctx),
		c.es.ClearScroll.WithScrollID(scrollID),
	)
	if err != nil {
		c.log.Warn("clear scroll", slog.Any("err", err))
		return
	}
	res.Body.Close()
}

// GetEpisode loads a single document by id.
func (c *Client) GetEpisode(ctx context.Context, id string) (*models.IndexDocument, error) {
	res, err := c.es.Get(c.index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get doc: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, responseError("get doc", res)
	}

	var parsed struct {
		Source models.IndexDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	return &parsed.Source, nil
}

// SearchEpisodes executes a bool query with optional keyword filters.
func (c *Client) SearchEpisodes(ctx context.Context, params SearchParams) (*SearchResult, error) {
	body, err := json.Marshal(buildSearchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return &SearchResult{Items: []models.IndexDocument{}}, nil
	}
	if res.IsError() {
		return nil, responseError("search", res)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.IndexDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.IndexDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

var sortableFields = map[string]struct{}{
	"episodeNumber": {},
	"published":     {},
	"_score":        {},
}

func buildSearchBody(params SearchParams) map[string]any {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 1)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"title^2", "summary", "nouns"},
			},
		})
	}

	if len(params.Keywords) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{
				"nouns": params.Keywords,
			},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	field, order := "episodeNumber", "desc"
	if params.Sort != "" {
		parts := strings.SplitN(params.Sort, ":", 2)
		if _, ok := sortableFields[parts[0]]; ok {
			field = parts[0]
		}
		if len(parts) > 1 && (parts[1] == "asc" || parts[1] == "desc") {
			order = parts[1]
		}
	}

	return map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": boolQuery,
		},
		"sort": []map[string]any{
			{field: map[string]any{"order": order}},
		},
	}
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("cluster health", res)
	}
	return nil
}

// responseError reads the error body Elasticsearch returned for op.
func responseError(op string, res *esapi.Response) error {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return fmt.Errorf("%s failed: %s: %s", op, res.Status(), strings.TrimSpace(string(data)))
}
