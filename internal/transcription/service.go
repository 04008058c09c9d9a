package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"harvest/internal/config"
	"harvest/internal/services"
)

const (
	// DefaultBinary is the whisper CLI executable name.
	DefaultBinary = "whisper"

	// DefaultModel balances quality and speed for sermon-length audio.
	DefaultModel = "base"

	defaultTimeout = 30 * time.Minute
)

// Service invokes the whisper CLI to transcribe audio files.
type Service struct {
	binary        string
	model         string
	timeout       time.Duration
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a transcription service from configuration.
func NewService(cfg config.Transcription) *Service {
	binary := cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Service{binary: binary, model: model, timeout: timeout}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for job metadata.
func (s *Service) Model() string {
	return s.model
}

// Transcribe runs the whisper CLI on an audio file and returns the plain
// text transcript. Each call gets its own timeout and scratch output
// directory.
func (s *Service) Transcribe(ctx context.Context, source string) (string, error) {
	if source == "" {
		return "", services.Wrap(services.ErrValidation, "transcription", "transcribe", "source path required", nil)
	}
	if _, err := os.Stat(source); err != nil {
		return "", services.Wrap(services.ErrNotFound, "transcription", "transcribe", "audio file missing", err)
	}

	outputDir, err := os.MkdirTemp("", "harvest-whisper-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(outputDir)
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{
		"--model", s.model,
		"--output_format", "txt",
		"--output_dir", outputDir,
		source,
	}
	if err := s.run(runCtx, s.binary, args...); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "transcription", "transcribe",
				fmt.Sprintf("whisper exceeded %s", s.timeout), err)
		}
		return "", services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "whisper failed", err)
	}

	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	transcriptPath := filepath.Join(outputDir, base+".txt")
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "no transcript produced", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "empty transcript", nil)
	}
	return text, nil
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
