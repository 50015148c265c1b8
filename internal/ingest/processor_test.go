package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/podcast-radar/internal/ingest"
)

func TestProcessIndexesEpisode(t *testing.T) {
	media := newFakeMedia()
	stt := &fakeSTT{text: "コーヒーと豆"}
	idx := newMemIndex()
	p := ingest.NewProcessor(media, stt, fakeKeywords{words: []string{"豆", "コーヒー", "豆"}}, idx,
		ingest.ProcessorOptions{Language: "ja"}, nil)

	ep := episode("E1")
	ep.Summary = "summary"
	out := p.Process(context.Background(), ep)

	require.True(t, out.OK())
	require.Equal(t, ingest.StageDone, out.Stage)
	require.Equal(t, "E1", out.EpisodeID)
	require.Equal(t, 2, out.Keywords)

	doc := idx.docs["E1"]
	require.Equal(t, []string{"コーヒー", "豆"}, doc.Keywords)
	require.Equal(t, "summary", doc.Summary)
	require.Equal(t, ep.MediaURL, doc.MediaURL)

	require.Equal(t, []string{"/media/E1.audio"}, stt.calls)
	require.Equal(t, []string{"ja"}, stt.langs)
	require.Empty(t, media.live)
}

func TestProcessMinimalSchema(t *testing.T) {
	idx := newMemIndex()
	p := ingest.NewProcessor(newFakeMedia(), &fakeSTT{}, fakeKeywords{}, idx,
		ingest.ProcessorOptions{MinimalSchema: true}, nil)

	ep := episode("E1")
	ep.Summary = "summary"
	ep.DurationLabel = "10:00"
	require.True(t, p.Process(context.Background(), ep).OK())
	require.Empty(t, idx.docs["E1"].Summary)
	require.Empty(t, idx.docs["E1"].DurationLabel)
}

func TestProcessFailureStagesReleaseMedia(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		setup     func(media *fakeMedia, stt *fakeSTT, kw *fakeKeywords, idx *memIndex)
		wantStage ingest.Stage
		acquired  bool
	}{
		{
			name:      "download",
			setup:     func(media *fakeMedia, _ *fakeSTT, _ *fakeKeywords, _ *memIndex) { media.failIDs["E1"] = true },
			wantStage: ingest.StageDownload,
		},
		{
			name: "transcription",
			setup: func(_ *fakeMedia, stt *fakeSTT, _ *fakeKeywords, _ *memIndex) {
				stt.failPath = map[string]error{"/media/E1.audio": boom}
			},
			wantStage: ingest.StageTranscription,
			acquired:  true,
		},
		{
			name:      "transcription panic",
			setup:     func(_ *fakeMedia, stt *fakeSTT, _ *fakeKeywords, _ *memIndex) { stt.panicOn = "/media/E1.audio" },
			wantStage: ingest.StageTranscription,
			acquired:  true,
		},
		{
			name:      "extraction",
			setup:     func(_ *fakeMedia, _ *fakeSTT, kw *fakeKeywords, _ *memIndex) { kw.err = boom },
			wantStage: ingest.StageExtraction,
			acquired:  true,
		},
		{
			name:      "index write",
			setup:     func(_ *fakeMedia, _ *fakeSTT, _ *fakeKeywords, idx *memIndex) { idx.failIDs["E1"] = boom },
			wantStage: ingest.StageIndexWrite,
			acquired:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media := newFakeMedia()
			stt := &fakeSTT{text: "text"}
			kw := &fakeKeywords{words: []string{"a"}}
			idx := newMemIndex()
			tt.setup(media, stt, kw, idx)

			p := ingest.NewProcessor(media, stt, kw, idx, ingest.ProcessorOptions{}, nil)
			out := p.Process(context.Background(), episode("E1"))

			require.False(t, out.OK())
			require.Equal(t, tt.wantStage, out.Stage)
			stage, ok := ingest.StageOf(out.Err)
			require.True(t, ok)
			require.Equal(t, tt.wantStage, stage)

			require.Empty(t, media.live)
			require.NotContains(t, idx.docs, "E1")
			if tt.acquired {
				require.Equal(t, []string{"E1"}, media.released)
			} else {
				require.Empty(t, media.released)
			}
		})
	}
}

func TestProcessReleaseErrorIsNotEscalated(t *testing.T) {
	media := newFakeMedia()
	media.releaseErr = errors.New("permission denied")
	idx := newMemIndex()

	p := ingest.NewProcessor(media, &fakeSTT{}, fakeKeywords{}, idx, ingest.ProcessorOptions{}, nil)
	out := p.Process(context.Background(), episode("E1"))

	require.True(t, out.OK())
	require.Contains(t, idx.docs, "E1")
}

func TestStageErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := &ingest.StageError{Stage: ingest.StageDownload, Err: cause}
	require.ErrorIs(t, err, cause)
	require.Equal(t, "download: disk full", err.Error())

	_, ok := ingest.StageOf(cause)
	require.False(t, ok)
}
