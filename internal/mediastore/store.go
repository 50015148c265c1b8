package mediastore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DeafMist/podcast-radar/internal/logger"
	"github.com/DeafMist/podcast-radar/internal/models"
)

const tempPrefix = ".partial-"

// Options configure the media store.
type Options struct {
	Dir       string
	Ext       string
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// Store places downloaded audio under a directory, one file per episode id.
type Store struct {
	dir       string
	ext       string
	userAgent string
	client    *http.Client
	log       *slog.Logger
}

// New creates the media directory if needed and returns a store rooted at it.
func New(opts Options, log *slog.Logger) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("media dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	ext := strings.TrimPrefix(opts.Ext, ".")
	if ext == "" {
		ext = "audio"
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Store{dir: opts.Dir, ext: ext, userAgent: opts.UserAgent, client: client, log: log}, nil
}

// PathFor returns the location addressed by an episode id.
func (s *Store) PathFor(episodeID string) string {
	return filepath.Join(s.dir, fileKey(episodeID)+"."+s.ext)
}

// Acquire streams sourceURL to the episode's path, replacing any earlier file.
func (s *Store) Acquire(ctx context.Context, episodeID, sourceURL string) (models.MediaAsset, error) {
	if strings.TrimSpace(episodeID) == "" {
		return models.MediaAsset{}, errors.New("episode id is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return models.MediaAsset{}, fmt.Errorf("build media request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return models.MediaAsset{}, fmt.Errorf("download media: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return models.MediaAsset{}, fmt.Errorf("download media: unexpected status %s", res.Status)
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+fileKey(episodeID)+"-*")
	if err != nil {
		return models.MediaAsset{}, fmt.Errorf("create temp media file: %w", err)
	}
	tmpPath := tmp.Name()

	written, copyErr := io.Copy(tmp, res.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if copyErr != nil {
			return models.MediaAsset{}, fmt.Errorf("write media: %w", copyErr)
		}
		return models.MediaAsset{}, fmt.Errorf("close media file: %w", closeErr)
	}

	path := s.PathFor(episodeID)
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return models.MediaAsset{}, fmt.Errorf("move media into place: %w", err)
	}

	s.log.Debug("media stored",
		slog.String("episode_id", episodeID),
		slog.String("path", path),
		slog.Int64("bytes", written),
	)
	return models.MediaAsset{EpisodeID: episodeID, Path: path}, nil
}

// Release deletes the asset. A file that is already gone counts as released.
func (s *Store) Release(asset models.MediaAsset) error {
	path := asset.Path
	if path == "" {
		if asset.EpisodeID == "" {
			return nil
		}
		path = s.PathFor(asset.EpisodeID)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove media: %w", err)
	}
	return nil
}

// Sweep removes media and partial downloads last modified before the cutoff.
// It returns the number of files removed.
func (s *Store) Sweep(olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read media dir: %w", err)
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !s.owns(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(olderThan) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		removed++
		s.log.Info("swept stale media", slog.String("path", path), slog.Time("modified", info.ModTime()))
	}

	return removed, errors.Join(errs...)
}

func (s *Store) owns(name string) bool {
	return strings.HasPrefix(name, tempPrefix) || strings.HasSuffix(name, "."+s.ext)
}

// fileKey maps an episode id to a safe file name. Ids that are already plain
// names are used as is; anything else (typically URL-shaped GUIDs) is hashed.
func fileKey(episodeID string) string {
	if isPlainName(episodeID) {
		return episodeID
	}
	sum := sha1.Sum([]byte(episodeID))
	return hex.EncodeToString(sum[:])
}

func isPlainName(id string) bool {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
