package stt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	. "github.com/voxtail/voxtail/internal/logging"
)

// WhisperCppProvider implements STT using whisper.cpp.
type WhisperCppProvider struct {
	model  whisper.Model
	config WhisperCppConfig
}

// WhisperCppConfig holds configuration for Whisper.cpp.
type WhisperCppConfig struct {
	ModelsDir string // Directory containing whisper models
	Model     string // Model file name (e.g., "ggml-base.en.bin")
	Language  string // Language code ("en", "auto" for detection)
	Threads   uint   // Number of threads (0 = auto)
}

// NewWhisperCppProvider loads the model into memory and returns a ready
// provider. Loading a multi-GB model takes seconds to minutes; callers
// must not hold fast-path locks across this call.
func NewWhisperCppProvider(cfg WhisperCppConfig) (*WhisperCppProvider, error) {
	if cfg.ModelsDir == "" || cfg.Model == "" {
		return nil, fmt.Errorf("whisper.cpp model not configured")
	}

	modelPath := filepath.Join(cfg.ModelsDir, cfg.Model)
	if info, err := os.Stat(modelPath); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	}

	start := time.Now()
	L_info("stt: loading whisper.cpp model", "path", modelPath)

	model, err := whisper.New(modelPath)
	if err != nil {
		// Model file exists but failed to load - usually memory pressure
		return nil, Transient(fmt.Errorf("load whisper model: %w", err))
	}

	L_elapsed(start, "stt: whisper.cpp model loaded", "multilingual", model.IsMultilingual())

	return &WhisperCppProvider{
		model:  model,
		config: cfg,
	}, nil
}

// Transcribe converts an audio file to text using Whisper.cpp.
func (w *WhisperCppProvider) Transcribe(filePath string) (string, time.Duration, error) {
	L_debug("stt: transcribing", "file", filePath)

	samples, err := ConvertToFloat32(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("convert audio: %w", err)
	}

	audioDuration := time.Duration(float64(len(samples)) / float64(targetSampleRate) * float64(time.Second))
	L_debug("stt: audio converted", "samples", len(samples), "duration", audioDuration)

	ctx, err := w.model.NewContext()
	if err != nil {
		return "", 0, Transient(fmt.Errorf("create whisper context: %w", err))
	}

	if w.config.Language != "" {
		if err := ctx.SetLanguage(w.config.Language); err != nil {
			L_warn("stt: failed to set language", "language", w.config.Language, "error", err)
		}
	}
	if w.config.Threads > 0 {
		ctx.SetThreads(w.config.Threads)
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", 0, Transient(fmt.Errorf("whisper process: %w", err))
	}

	var text strings.Builder
	for {
		segment, err := ctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, Transient(fmt.Errorf("get segment: %w", err))
		}
		text.WriteString(segment.Text)
	}

	result := strings.TrimSpace(text.String())
	L_debug("stt: transcription complete", "length", len(result))

	return result, audioDuration, nil
}

// Name returns the provider name.
func (w *WhisperCppProvider) Name() string {
	return "whispercpp"
}

// Close releases the whisper model.
func (w *WhisperCppProvider) Close() error {
	L_debug("stt: closing whisper.cpp model", "model", w.config.Model)
	return w.model.Close()
}
