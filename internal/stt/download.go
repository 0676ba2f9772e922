package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	. "github.com/voxtail/voxtail/internal/logging"
	"github.com/voxtail/voxtail/internal/paths"
)

// DownloadModel downloads a whisper model into destDir.
// Progress is logged via L_info.
func DownloadModel(model *WhisperModel, destDir string) error {
	if model == nil {
		return fmt.Errorf("model is nil")
	}

	expandedDir, err := paths.ExpandTilde(destDir)
	if err != nil {
		return fmt.Errorf("expand path: %w", err)
	}

	if err := os.MkdirAll(expandedDir, 0750); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}

	destPath := filepath.Join(expandedDir, model.Name)
	tempPath := destPath + ".download"

	L_info("stt: downloading model", "model", model.Name, "size", model.Size, "url", model.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", model.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	totalSize := resp.ContentLength
	if totalSize <= 0 {
		totalSize = model.SizeBytes
	}

	tempFile, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	var downloaded int64
	lastLog := time.Now()
	buf := make([]byte, 1024*1024)

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := tempFile.Write(buf[:n]); writeErr != nil {
				tempFile.Close()
				os.Remove(tempPath)
				return fmt.Errorf("write file: %w", writeErr)
			}
			downloaded += int64(n)

			if time.Since(lastLog) > 2*time.Second {
				percent := int(float64(downloaded) / float64(totalSize) * 100)
				L_info("stt: downloading",
					"progress", fmt.Sprintf("%d%%", percent),
					"downloaded", fmt.Sprintf("%s/%s", humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(totalSize))))
				lastLog = time.Now()
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			tempFile.Close()
			os.Remove(tempPath)
			return fmt.Errorf("read response: %w", err)
		}
	}

	tempFile.Close()

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename file: %w", err)
	}

	L_info("stt: download complete", "model", model.Name, "path", destPath)
	return nil
}
