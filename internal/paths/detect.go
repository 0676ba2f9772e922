package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// DetectMediaDir attempts to locate the messaging app's media folder
// based on OS defaults. A non-empty override always wins (if it exists).
// Returns "" when nothing is found; the caller decides whether that is
// fatal.
func DetectMediaDir(override string) string {
	if override != "" {
		expanded, err := ExpandTilde(override)
		if err == nil {
			if _, err := os.Stat(expanded); err == nil {
				return expanded
			}
		}
		return ""
	}

	for _, candidate := range defaultMediaCandidates() {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return ""
}

// defaultMediaCandidates returns known WhatsApp media locations for the
// current OS, most specific first.
func defaultMediaCandidates() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return []string{
			// App Store build
			filepath.Join(home, "Library/Group Containers/group.net.whatsapp.WhatsApp.shared/Message/Media"),
			// Direct download build
			filepath.Join(home, "Library/Application Support/WhatsApp/Media"),
		}
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			return nil
		}
		return []string{
			// Store build
			filepath.Join(localAppData, "Packages", "5319275A.WhatsAppDesktop_cv1g1gvanyjgm", "LocalState", "shared", "transfers"),
			// Legacy desktop build
			filepath.Join(localAppData, "WhatsApp", "Media"),
		}
	default:
		return nil
	}
}
