package stt

import (
	"os"
	"path/filepath"
	"strings"
)

// WhisperModel represents an available whisper.cpp model.
type WhisperModel struct {
	Name        string  // Filename: "ggml-tiny.en.bin"
	Family      string  // Size family: "tiny", "base", "small", "medium", "large"
	Label       string  // Display name: "Tiny English"
	Size        string  // Human readable download size: "39 MB"
	SizeBytes   int64   // For download progress calculation
	FootprintGB float64 // Estimated resident memory during inference
	URL         string  // Download URL
}

// Families lists the model size families from smallest to largest.
// Order matters: the capacity advisor walks it monotonically.
var Families = []string{"tiny", "base", "small", "medium", "large"}

// FamilyFootprintGB maps a size family to its estimated resident memory
// requirement in GB. Heuristic figures, deliberately pessimistic.
var FamilyFootprintGB = map[string]float64{
	"tiny":   1.0,
	"base":   1.0,
	"small":  2.0,
	"medium": 5.0,
	"large":  10.0,
}

// WhisperModels is the catalog of available whisper.cpp models.
// Models from: https://huggingface.co/ggerganov/whisper.cpp
var WhisperModels = []WhisperModel{
	{
		Name:        "ggml-tiny.en.bin",
		Family:      "tiny",
		Label:       "Tiny English",
		Size:        "39 MB",
		SizeBytes:   39_000_000,
		FootprintGB: 1.0,
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin",
	},
	{
		Name:        "ggml-tiny.bin",
		Family:      "tiny",
		Label:       "Tiny Multilingual",
		Size:        "39 MB",
		SizeBytes:   39_000_000,
		FootprintGB: 1.0,
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin",
	},
	{
		Name:        "ggml-base.en.bin",
		Family:      "base",
		Label:       "Base English",
		Size:        "142 MB",
		SizeBytes:   142_000_000,
		FootprintGB: 1.0,
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin",
	},
	{
		Name:        "ggml-base.bin",
		Family:      "base",
		Label:       "Base Multilingual",
		Size:        "142 MB",
		SizeBytes:   142_000_000,
		FootprintGB: 1.0,
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
	},
	{
		Name:        "ggml-small.en.bin",
		Family:      "small",
		Label:       "Small English",
		Size:        "466 MB",
		SizeBytes:   466_000_000,
		FootprintGB: 2.0,
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.en.bin",
	},
	{
		Name:        "ggml-small.bin",
		Family:      "small",
		Label:       "Small Multilingual",
		Size:        "466 MB",
		SizeBytes:   466_000_000,
		FootprintGB: 2.0,
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
	},
	{
		Name:        "ggml-medium.bin",
		Family:      "medium",
		Label:       "Medium Multilingual",
		Size:        "1.5 GB",
		SizeBytes:   1_500_000_000,
		FootprintGB: 5.0,
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin",
	},
	{
		Name:        "ggml-large-v3.bin",
		Family:      "large",
		Label:       "Large V3 Multilingual",
		Size:        "3.0 GB",
		SizeBytes:   3_000_000_000,
		FootprintGB: 10.0,
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin",
	},
}

// GetModel returns the model with the given file name, or nil if not found.
func GetModel(name string) *WhisperModel {
	for i := range WhisperModels {
		if WhisperModels[i].Name == name {
			return &WhisperModels[i]
		}
	}
	return nil
}

// FamilyOf returns the size family of a model file name.
// Unknown names fall back to parsing the "ggml-<family>..." prefix.
func FamilyOf(name string) string {
	if m := GetModel(name); m != nil {
		return m.Family
	}
	trimmed := strings.TrimPrefix(name, "ggml-")
	for _, fam := range Families {
		if strings.HasPrefix(trimmed, fam) {
			return fam
		}
	}
	return ""
}

// DefaultModelForFamily returns the preferred model file for a size
// family (English variant where one exists).
func DefaultModelForFamily(family string) *WhisperModel {
	for i := range WhisperModels {
		if WhisperModels[i].Family == family {
			return &WhisperModels[i]
		}
	}
	return nil
}

// IsModelDownloaded checks if a model file exists in the given directory.
func IsModelDownloaded(modelsDir, name string) bool {
	if modelsDir == "" || name == "" {
		return false
	}
	path := filepath.Join(modelsDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
