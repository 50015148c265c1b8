package ingest

import (
	"errors"
	"fmt"
)

// Stage names the step of the episode pipeline an outcome refers to.
type Stage string

const (
	StageDone          Stage = ""
	StageDownload      Stage = "download"
	StageTranscription Stage = "transcription"
	StageExtraction    Stage = "extraction"
	StageIndexWrite    Stage = "index_write"
)

var (
	// ErrFeedFetch is returned by Run when the feed episodes cannot be loaded.
	ErrFeedFetch = errors.New("load feed episodes")
	// ErrListIndexed is returned by Run when the indexed ids cannot be listed.
	ErrListIndexed = errors.New("list indexed episodes")
)

// StageError is the failure of a single pipeline step for one episode.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf reports the stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return StageDone, false
}
