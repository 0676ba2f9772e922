// Package health implements the preflight diagnostics command: memory
// and accelerator report, model fit, external tooling, watch directory
// and ledger state. It prints for humans and returns an exit-worthy
// error only when the daemon could not run at all.
package health

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/voxtail/voxtail/internal/capacity"
	"github.com/voxtail/voxtail/internal/config"
	"github.com/voxtail/voxtail/internal/ledger"
	"github.com/voxtail/voxtail/internal/paths"
	"github.com/voxtail/voxtail/internal/stt"
)

// Run prints the full diagnostics report for the given configuration.
func Run(cfg *config.Config) error {
	fmt.Println("voxtail health check")
	fmt.Println()

	profile := capacity.Sample()
	budget := capacity.Budget{
		SystemMemoryFactor: cfg.Capacity.SystemMemoryFactor,
		VRAMFactor:         cfg.Capacity.VRAMFactor,
	}

	reportHardware(profile, budget)
	fmt.Println()
	critical := reportModel(cfg, profile, budget)
	fmt.Println()
	reportTools()
	fmt.Println()
	reportWatchDir(cfg)
	fmt.Println()
	reportLedger()

	if critical {
		return fmt.Errorf("configured model does not fit this machine")
	}
	return nil
}

func reportHardware(p capacity.Profile, b capacity.Budget) {
	fmt.Println("hardware")
	fmt.Printf("  total memory:      %s\n", humanize.Bytes(uint64(p.TotalRAMGB*1024*1024*1024)))
	if p.AvailableRAMGB > 0 {
		fmt.Printf("  available memory:  %s\n", humanize.Bytes(uint64(p.AvailableRAMGB*1024*1024*1024)))
	}
	switch p.Accelerator {
	case capacity.AccelMetal:
		fmt.Println("  accelerator:       Apple Metal (unified memory)")
	case capacity.AccelCUDA:
		fmt.Printf("  accelerator:       NVIDIA CUDA, %s VRAM\n",
			humanize.Bytes(uint64(p.AcceleratorGB*1024*1024*1024)))
	default:
		fmt.Println("  accelerator:       none (CPU inference)")
	}

	usable, basis := capacity.Usable(p, b)
	fmt.Printf("  usable for models: %.1f GB (%s)\n", usable, basis)
}

// reportModel compares configured against recommended model size.
// Returns true when the configured model cannot fit at all.
func reportModel(cfg *config.Config, p capacity.Profile, b capacity.Budget) bool {
	fmt.Println("model")

	name := cfg.Model.Model
	family := stt.FamilyOf(name)
	recommended := capacity.Recommend(p, b)

	fmt.Printf("  configured:   %s (%s)\n", name, family)
	fmt.Printf("  recommended:  %s\n", recommended)

	modelsDir, err := paths.ExpandTilde(cfg.Model.ModelsDir)
	if err == nil {
		if stt.IsModelDownloaded(modelsDir, name) {
			fmt.Println("  downloaded:   yes")
		} else {
			fmt.Println("  downloaded:   no (run: voxtail model download)")
		}
	}

	switch capacity.Validate(family, p, b) {
	case capacity.VerdictInsufficient:
		fmt.Printf("  CRITICAL: %q needs more memory than this machine can give it; use %q\n",
			family, recommended)
		return true
	case capacity.VerdictWarn:
		fmt.Printf("  advice: %q will be tight here; %q would leave headroom\n",
			family, recommended)
	default:
		fmt.Println("  fit:          ok")
	}
	return false
}

func reportTools() {
	fmt.Println("tools")
	if stt.FFmpegAvailable() {
		fmt.Println("  ffmpeg:  found")
	} else {
		fmt.Println("  ffmpeg:  missing (only .ogg/.opus notes will decode)")
	}
}

func reportWatchDir(cfg *config.Config) {
	fmt.Println("watch")
	dir := paths.DetectMediaDir(cfg.Watch.Dir)
	if dir == "" {
		fmt.Println("  directory: NOT FOUND - set watch.dir in the config file")
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		fmt.Printf("  directory: %s (unreadable)\n", dir)
		return
	}
	fmt.Printf("  directory: %s\n", dir)
	fmt.Printf("  extensions: %v\n", cfg.Watch.Extensions)
}

func reportLedger() {
	fmt.Println("ledger")
	dbPath, err := paths.LedgerPath()
	if err != nil {
		fmt.Printf("  unavailable: %v\n", err)
		return
	}
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("  empty (no history yet)")
		return
	}

	l, err := ledger.Open(dbPath)
	if err != nil {
		fmt.Printf("  unavailable: %v\n", err)
		return
	}
	defer l.Close()

	counts, err := l.CountByStatus()
	if err != nil {
		fmt.Printf("  unavailable: %v\n", err)
		return
	}
	fmt.Printf("  done: %d  pending: %d  in_progress: %d  failed: %d\n",
		counts[ledger.StatusDone], counts[ledger.StatusPending],
		counts[ledger.StatusInProgress], counts[ledger.StatusFailed])
}
