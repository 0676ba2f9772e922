package stt

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"
	. "github.com/voxtail/voxtail/internal/logging"
	"github.com/zeozeozeo/gomplerate"
)

const (
	targetSampleRate = 16000 // whisper.cpp requires 16kHz mono
	maxFrameSize     = 5760  // Max Opus frame size (120ms at 48kHz)
)

// ConvertToFloat32 converts an audio file to 16kHz mono float32 samples,
// the input format whisper.cpp expects. OGG/Opus voice notes go through
// ffmpeg when available (the pure Go decoder chokes on some encoders),
// falling back to pion/opus. Everything else requires ffmpeg.
func ConvertToFloat32(filePath string) ([]float32, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".ogg", ".opus", ".oga":
		if FFmpegAvailable() {
			L_debug("stt: converting via ffmpeg", "file", filePath)
			return convertWithFFmpeg(filePath)
		}
		samples, err := decodeOggOpusSafe(filePath)
		if err != nil {
			return nil, fmt.Errorf("OGG decode failed (%v) - install ffmpeg for reliable conversion", err)
		}
		return samples, nil
	case ".m4a", ".mp3", ".wav", ".aac", ".flac":
		if !FFmpegAvailable() {
			return nil, fmt.Errorf("%w: %s requires ffmpeg", ErrUnsupportedAudio, ext)
		}
		L_debug("stt: converting via ffmpeg", "file", filePath, "ext", ext)
		return convertWithFFmpeg(filePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAudio, ext)
	}
}

// decodeOggOpusSafe wraps decodeOggOpus with panic recovery; pion/opus
// can panic on malformed packets.
func decodeOggOpusSafe(filePath string) (samples []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			L_warn("stt: opus decoder panicked, recovered", "panic", r)
			samples = nil
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return decodeOggOpus(filePath)
}

// decodeOggOpus decodes an OGG/Opus file to 16kHz mono float32 in pure Go.
func decodeOggOpus(filePath string) ([]float32, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	ogg, header, err := oggreader.NewWith(file)
	if err != nil {
		return nil, fmt.Errorf("parse OGG container: %w", err)
	}

	sampleRate := int(header.SampleRate)
	channels := int(header.Channels)
	L_debug("stt: OGG header", "sampleRate", sampleRate, "channels", channels)

	decoder := opus.NewDecoder()
	outBuf := make([]byte, maxFrameSize*channels*2) // 16-bit samples

	var pcm []int16
	for {
		segments, _, err := ogg.ParseNextPage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse OGG page: %w", err)
		}

		// Each segment is one Opus packet
		for _, segment := range segments {
			if len(segment) == 0 {
				continue
			}

			_, isStereo, err := decoder.Decode(segment, outBuf)
			if err != nil {
				L_debug("stt: skipping undecodable packet", "error", err, "len", len(segment))
				continue
			}

			packetChannels := 1
			if isStereo {
				packetChannels = 2
			}
			pcm = append(pcm, pcmFromBytes(outBuf, packetChannels)...)
		}
	}

	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: no samples decoded from %s", ErrCorruptAudio, filepath.Base(filePath))
	}

	if channels > 1 {
		pcm = downmixMono(pcm, channels)
	}
	if sampleRate != targetSampleRate {
		L_debug("stt: resampling", "from", sampleRate, "to", targetSampleRate)
		pcm = resample(pcm, sampleRate, targetSampleRate)
	}

	return normalize(pcm), nil
}

// pcmFromBytes reads little-endian int16 samples out of a decode buffer,
// stopping at the trailing all-zero region (unused buffer space).
func pcmFromBytes(buf []byte, channels int) []int16 {
	samples := make([]int16, 0, len(buf)/2)

	for i := 0; i < len(buf)-1; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(buf[i : i+2])) // #nosec G115 - uint16 to int16 reinterpret of PCM
		if sample == 0 && i > 0 {
			rest := buf[i:]
			allZero := true
			for j := 0; j < len(rest)-1; j += 2 {
				if binary.LittleEndian.Uint16(rest[j:j+2]) != 0 {
					allZero = false
					break
				}
			}
			if allZero {
				break
			}
		}
		samples = append(samples, sample)
	}

	_ = channels // channel interleave preserved; downmix happens later
	return samples
}

// downmixMono averages interleaved channels into one.
func downmixMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels)) // #nosec G115 - average of int16 fits
	}
	return mono
}

// resample converts between sample rates using gomplerate.
func resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate {
		return samples
	}
	resampler, err := gomplerate.NewResampler(1, fromRate, toRate)
	if err != nil {
		L_warn("stt: resampler creation failed, keeping original rate", "error", err)
		return samples
	}
	return resampler.ResampleInt16(samples)
}

// normalize converts int16 PCM to float32 in [-1, 1].
func normalize(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// FFmpegAvailable reports whether ffmpeg is on PATH. Without it only
// OGG/Opus notes can be decoded.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// convertWithFFmpeg shells out to ffmpeg for a 16kHz mono s16le render.
func convertWithFFmpeg(inputPath string) ([]float32, error) {
	tmpFile, err := os.CreateTemp("", "voxtail-*.raw")
	if err != nil {
		return nil, Transient(fmt.Errorf("create temp file: %w", err))
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	// #nosec G204 - inputPath comes from our own directory watcher
	cmd := exec.Command("ffmpeg",
		"-i", inputPath,
		"-ar", fmt.Sprintf("%d", targetSampleRate),
		"-ac", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-y",
		tmpPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		L_debug("stt: ffmpeg output", "output", string(output))
		// ffmpeg rejecting the input means the file itself is bad
		return nil, fmt.Errorf("%w: ffmpeg: %v", ErrCorruptAudio, err)
	}

	rawData, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, Transient(fmt.Errorf("read converted audio: %w", err))
	}
	if len(rawData) < 2 {
		return nil, fmt.Errorf("%w: ffmpeg produced no samples", ErrCorruptAudio)
	}

	samples := make([]int16, len(rawData)/2)
	for i := range samples {
		samples[i] = int16(rawData[i*2]) | int16(rawData[i*2+1])<<8
	}

	return normalize(samples), nil
}
