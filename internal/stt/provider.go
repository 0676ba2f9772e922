// Package stt provides local speech-to-text transcription for voice notes.
package stt

import "time"

// Provider is the interface for STT implementations.
type Provider interface {
	// Transcribe converts an audio file to text. Returns the text and
	// the audio duration (for log metadata).
	Transcribe(filePath string) (string, time.Duration, error)

	// Name returns the provider name (e.g., "whispercpp")
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}
