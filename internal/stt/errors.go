package stt

import (
	"errors"
	"fmt"
)

// Permanent failure causes. A file that produces one of these will never
// transcribe successfully, so workers record it as failed without retry.
var (
	// ErrCorruptAudio indicates the file decoded to no usable samples
	ErrCorruptAudio = errors.New("audio file is corrupt or empty")

	// ErrUnsupportedAudio indicates a container/codec we cannot decode
	ErrUnsupportedAudio = errors.New("unsupported audio format")

	// ErrModelNotFound indicates the configured model file is missing
	ErrModelNotFound = errors.New("whisper model not found")
)

// errTransient marks failures worth retrying (I/O hiccups, momentary
// memory pressure). Never matched directly; use IsTransient.
var errTransient = errors.New("transient transcription failure")

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errTransient, err)
}

// IsTransient reports whether err is a retryable failure.
func IsTransient(err error) bool {
	return errors.Is(err, errTransient)
}

// IsPermanent reports whether err can never succeed on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrCorruptAudio) ||
		errors.Is(err, ErrUnsupportedAudio) ||
		errors.Is(err, ErrModelNotFound)
}
