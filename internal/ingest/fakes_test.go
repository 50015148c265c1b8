package ingest_test

import (
	"context"
	"errors"
	"sync"

	"github.com/DeafMist/podcast-radar/internal/models"
)

type memIndex struct {
	mu      sync.Mutex
	docs    map[string]models.IndexDocument
	upserts []string
	failIDs map[string]error
	listErr error
}

func newMemIndex(ids ...string) *memIndex {
	idx := &memIndex{docs: map[string]models.IndexDocument{}, failIDs: map[string]error{}}
	for _, id := range ids {
		idx.docs[id] = models.IndexDocument{ObjectID: id}
	}
	return idx
}

func (m *memIndex) ListIndexedIDs(context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make(map[string]struct{}, len(m.docs))
	for id := range m.docs {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *memIndex) Upsert(_ context.Context, doc models.IndexDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIDs[doc.ObjectID]; err != nil {
		return err
	}
	m.docs[doc.ObjectID] = doc
	m.upserts = append(m.upserts, doc.ObjectID)
	return nil
}

func (m *memIndex) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.docs))
	for id := range m.docs {
		out = append(out, id)
	}
	return out
}

type staticFeed struct {
	episodes []models.EpisodeMetadata
	err      error
}

func (f staticFeed) Episodes(context.Context) ([]models.EpisodeMetadata, error) {
	return f.episodes, f.err
}

// fakeMedia tracks assets in memory so tests can assert nothing is left behind.
type fakeMedia struct {
	live       map[string]bool
	acquired   []string
	released   []string
	failIDs    map[string]bool
	releaseErr error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{live: map[string]bool{}, failIDs: map[string]bool{}}
}

func (f *fakeMedia) Acquire(_ context.Context, id, _ string) (models.MediaAsset, error) {
	if f.failIDs[id] {
		return models.MediaAsset{}, errors.New("connection reset")
	}
	f.live[id] = true
	f.acquired = append(f.acquired, id)
	return models.MediaAsset{EpisodeID: id, Path: "/media/" + id + ".audio"}, nil
}

func (f *fakeMedia) Release(asset models.MediaAsset) error {
	delete(f.live, asset.EpisodeID)
	f.released = append(f.released, asset.EpisodeID)
	return f.releaseErr
}

type fakeSTT struct {
	text     string
	failPath map[string]error
	panicOn  string
	calls    []string
	langs    []string
}

func (f *fakeSTT) Transcribe(_ context.Context, path, language string) (string, error) {
	f.calls = append(f.calls, path)
	f.langs = append(f.langs, language)
	if path == f.panicOn {
		panic("model crashed")
	}
	if err := f.failPath[path]; err != nil {
		return "", err
	}
	return f.text, nil
}

type fakeKeywords struct {
	words []string
	err   error
}

func (f fakeKeywords) Extract(context.Context, string) ([]string, error) {
	return f.words, f.err
}

func episode(id string) models.EpisodeMetadata {
	return models.EpisodeMetadata{
		ID:          id,
		Title:       "Title " + id,
		MediaURL:    "https://cdn.example.com/" + id + ".mp3",
		PublishedAt: "Mon, 02 Jan 2023 15:04:05 +0900",
	}
}
