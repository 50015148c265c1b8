package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/podcast-radar/internal/elasticsearch"
	"github.com/DeafMist/podcast-radar/internal/models"
)

// fakeES implements the handful of endpoints the client touches.
type fakeES struct {
	mu         sync.Mutex
	index      string
	exists     bool
	docs       map[string]json.RawMessage
	writes     int
	created    bool
	scrolls    map[string][]string
	cleared    []string
	lastSearch map[string]any
	nextScroll int
	// rotate hands out a fresh scroll id on every continuation page.
	rotate     bool
}

func newFakeES(index string) *fakeES {
	return &fakeES{index: index, docs: map[string]json.RawMessage{}, scrolls: map[string][]string{}}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	body, _ := io.ReadAll(r.Body)
	path := strings.Trim(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	switch {
	case strings.HasPrefix(path, "_search/scroll") && r.Method == http.MethodDelete:
		var req struct {
			ScrollID []string `json:"scroll_id"`
		}
		_ = json.Unmarshal(body, &req)
		f.cleared = append(f.cleared, req.ScrollID...)
		if id := r.URL.Query().Get("scroll_id"); id != "" {
			f.cleared = append(f.cleared, id)
		}
		if len(parts) == 3 {
			f.cleared = append(f.cleared, parts[2])
		}
		writeBody(w, http.StatusOK, map[string]any{"succeeded": true})

	case strings.HasPrefix(path, "_search/scroll"):
		scrollID := r.URL.Query().Get("scroll_id")
		if scrollID == "" {
			var req struct {
				ScrollID string `json:"scroll_id"`
			}
			_ = json.Unmarshal(body, &req)
			scrollID = req.ScrollID
		}
		if f.rotate {
			f.nextScroll++
			fresh := "scroll-" + strconv.Itoa(f.nextScroll)
			f.scrolls[fresh] = f.scrolls[scrollID]
			delete(f.scrolls, scrollID)
			scrollID = fresh
		}
		f.writeScrollPage(w, scrollID)

	case len(parts) == 1 && r.Method == http.MethodHead:
		if parts[0] == f.index && f.exists {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	case len(parts) == 1 && r.Method == http.MethodPut:
		f.exists = true
		f.created = true
		writeBody(w, http.StatusOK, map[string]any{"acknowledged": true})

	case len(parts) == 2 && parts[1] == "_search":
		if !f.exists {
			writeBody(w, http.StatusNotFound, map[string]any{"error": map[string]any{"type": "index_not_found_exception"}})
			return
		}
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		f.lastSearch = req

		if r.URL.Query().Get("scroll") == "" {
			f.writeSearchHits(w)
			return
		}

		size := len(f.docs)
		if v, ok := req["size"].(float64); ok {
			size = int(v)
		}
		ids := make([]string, 0, len(f.docs))
		for id := range f.docs {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		var pages []string
		for i := 0; i < len(ids); i += size {
			end := i + size
			if end > len(ids) {
				end = len(ids)
			}
			pages = append(pages, strings.Join(ids[i:end], ","))
		}
		f.nextScroll++
		scrollID := "scroll-" + strconv.Itoa(f.nextScroll)
		f.scrolls[scrollID] = pages
		f.writeScrollPage(w, scrollID)

	case len(parts) == 3 && parts[1] == "_doc" && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		f.exists = true
		_, existed := f.docs[parts[2]]
		f.docs[parts[2]] = json.RawMessage(body)
		f.writes++
		result := "created"
		if existed {
			result = "updated"
		}
		writeBody(w, http.StatusOK, map[string]any{"_id": parts[2], "result": result})

	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodGet:
		doc, ok := f.docs[parts[2]]
		if !ok {
			writeBody(w, http.StatusNotFound, map[string]any{"found": false})
			return
		}
		writeBody(w, http.StatusOK, map[string]any{"found": true, "_id": parts[2], "_source": doc})

	default:
		writeBody(w, http.StatusBadRequest, map[string]any{"error": "unexpected " + r.Method + " " + r.URL.Path})
	}
}

func (f *fakeES) writeScrollPage(w http.ResponseWriter, scrollID string) {
	pages := f.scrolls[scrollID]
	hits := []map[string]any{}
	if len(pages) > 0 {
		for _, id := range strings.Split(pages[0], ",") {
			hits = append(hits, map[string]any{"_id": id})
		}
		f.scrolls[scrollID] = pages[1:]
	}
	writeBody(w, http.StatusOK, map[string]any{
		"_scroll_id": scrollID,
		"hits":       map[string]any{"hits": hits},
	})
}

func (f *fakeES) writeSearchHits(w http.ResponseWriter) {
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	hits := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, map[string]any{"_id": id, "_source": f.docs[id]})
	}
	writeBody(w, http.StatusOK, map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(hits)},
			"hits":  hits,
		},
	})
}

func writeBody(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newClient(t *testing.T, fake *fakeES, pageSize int) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.New(elasticsearch.Options{
		Addresses: []string{srv.URL},
		Index:     fake.index,
		PageSize:  pageSize,
	}, nil)
	require.NoError(t, err)
	return client
}

func episodeDoc(id string, n int) models.IndexDocument {
	return models.BuildDocument(models.EpisodeMetadata{
		ID:            id,
		Title:         "Episode " + strconv.Itoa(n),
		EpisodeNumber: n,
		MediaURL:      "https://cdn.example.com/" + id + ".mp3",
		PublishedAt:   "Mon, 02 Jan 2023 15:04:05 +0900",
	}, []string{"珈琲"})
}

func TestListIndexedIDsMissingIndexIsEmpty(t *testing.T) {
	fake := newFakeES("episodes")
	client := newClient(t, fake, 2)

	ids, err := client.ListIndexedIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestListIndexedIDsFollowsPages(t *testing.T) {
	fake := newFakeES("episodes")
	client := newClient(t, fake, 2)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, client.Upsert(ctx, episodeDoc("ep-"+strconv.Itoa(i), i)))
	}

	ids, err := client.ListIndexedIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 5)
	for i := 1; i <= 5; i++ {
		require.Contains(t, ids, "ep-"+strconv.Itoa(i))
	}

	require.Equal(t, false, fake.lastSearch["_source"])
	require.NotEmpty(t, fake.cleared)
}

func TestListIndexedIDsClearsLatestScroll(t *testing.T) {
	fake := newFakeES("episodes")
	client := newClient(t, fake, 2)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, client.Upsert(ctx, episodeDoc("ep-"+strconv.Itoa(i), i)))
	}
	fake.rotate = true

	ids, err := client.ListIndexedIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 5)

	last := "scroll-" + strconv.Itoa(fake.nextScroll)
	require.NotEqual(t, "scroll-1", last)
	require.Contains(t, fake.cleared, last)
	require.NotContains(t, fake.cleared, "scroll-1")
}

func TestUpsertTwiceKeepsOneDocument(t *testing.T) {
	fake := newFakeES("episodes")
	client := newClient(t, fake, 10)
	ctx := context.Background()

	first := episodeDoc("ep-1", 1)
	require.NoError(t, client.Upsert(ctx, first))

	second := first
	second.Title = "Episode 1 (remastered)"
	require.NoError(t, client.Upsert(ctx, second))

	require.Equal(t, 2, fake.writes)
	require.Len(t, fake.docs, 1)

	got, err := client.GetEpisode(ctx, "ep-1")
	require.NoError(t, err)
	require.Equal(t, second, *got)
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	client := newClient(t, newFakeES("episodes"), 10)
	require.Error(t, client.Upsert(context.Background(), models.IndexDocument{}))
}

func TestGetEpisodeNotFound(t *testing.T) {
	fake := newFakeES("episodes")
	fake.exists = true
	client := newClient(t, fake, 10)

	_, err := client.GetEpisode(context.Background(), "missing")
	require.ErrorIs(t, err, elasticsearch.ErrNotFound)
}

func TestEnsureIndexCreatesOnce(t *testing.T) {
	fake := newFakeES("episodes")
	client := newClient(t, fake, 10)
	ctx := context.Background()

	require.NoError(t, client.EnsureIndex(ctx))
	require.True(t, fake.created)

	fake.created = false
	require.NoError(t, client.EnsureIndex(ctx))
	require.False(t, fake.created)
}

func TestSearchEpisodes(t *testing.T) {
	fake := newFakeES("episodes")
	client := newClient(t, fake, 10)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, episodeDoc("ep-1", 1)))
	require.NoError(t, client.Upsert(ctx, episodeDoc("ep-2", 2)))

	res, err := client.SearchEpisodes(ctx, elasticsearch.SearchParams{
		Query:    "珈琲",
		Keywords: []string{"珈琲"},
		Size:     500,
		Sort:     "published:asc",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Total)
	require.Len(t, res.Items, 2)
	require.Equal(t, "ep-1", res.Items[0].ObjectID)

	require.EqualValues(t, 200, fake.lastSearch["size"])
	sortSpec := fake.lastSearch["sort"].([]any)[0].(map[string]any)
	require.Contains(t, sortSpec, "published")
}

func TestSearchEpisodesMissingIndex(t *testing.T) {
	client := newClient(t, newFakeES("episodes"), 10)

	res, err := client.SearchEpisodes(context.Background(), elasticsearch.SearchParams{})
	require.NoError(t, err)
	require.Zero(t, res.Total)
	require.Empty(t, res.Items)
}

func TestNewRequiresIndex(t *testing.T) {
	_, err := elasticsearch.New(elasticsearch.Options{Addresses: []string{"http://localhost:9200"}}, nil)
	require.Error(t, err)
}
