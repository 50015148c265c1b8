package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/DeafMist/podcast-radar/internal/logger"
)

const (
	defaultBinary = "whisper"
	defaultModel  = "medium"
	outputFormat  = "txt"
)

// Whisper runs the openai-whisper command line tool against local audio files.
type Whisper struct {
	binary  string
	model   string
	workDir string
	log     *slog.Logger
}

// Options configure the whisper runner.
type Options struct {
	Binary  string
	Model   string
	WorkDir string
}

// NewWhisper returns a runner. Empty options fall back to `whisper` and the medium model.
func NewWhisper(opts Options, log *slog.Logger) *Whisper {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = defaultBinary
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Whisper{binary: binary, model: model, workDir: opts.WorkDir, log: log}
}

// Available reports whether the configured binary can be found.
func (w *Whisper) Available() bool {
	_, err := exec.LookPath(w.binary)
	return err == nil
}

// Transcribe converts the audio at path into plain text.
func (w *Whisper) Transcribe(ctx context.Context, path, language string) (string, error) {
	outDir, err := os.MkdirTemp(w.workDir, "whisper-")
	if err != nil {
		return "", fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := buildArgs(path, outDir, w.model, language)
	cmd := exec.CommandContext(ctx, w.binary, args...) //nolint:gosec
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	w.log.Debug("whisper start",
		slog.String("path", path),
		slog.String("model", w.model),
		slog.String("language", language),
	)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper: %w: %s", err, lastLine(stderr.String()))
	}

	text, err := readTranscript(outputPath(outDir, path))
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}
	return text, nil
}

func buildArgs(source, outputDir, model, language string) []string {
	args := []string{
		source,
		"--model", model,
		"--output_format", outputFormat,
		"--output_dir", outputDir,
		"--verbose", "False",
	}
	if lang := strings.TrimSpace(strings.ToLower(language)); lang != "" {
		args = append(args, "--language", lang)
	}
	return args
}

func outputPath(outputDir, source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(outputDir, base+"."+outputFormat)
}

func readTranscript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(data), "\n")
	var b strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
