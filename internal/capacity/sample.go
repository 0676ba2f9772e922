package capacity

import (
	"bufio"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	. "github.com/voxtail/voxtail/internal/logging"
)

// Sample inspects the host and returns a fresh Profile. Best effort:
// anything it cannot determine is left zero and the advisor falls back
// to conservative defaults.
func Sample() Profile {
	p := Profile{Accelerator: AccelNone}

	switch runtime.GOOS {
	case "linux":
		p.TotalRAMGB, p.AvailableRAMGB = linuxMemInfo()
	case "darwin":
		p.TotalRAMGB = darwinMemSize()
		p.AvailableRAMGB = p.TotalRAMGB // unified memory; no cheap available figure
		if runtime.GOARCH == "arm64" {
			p.Accelerator = AccelMetal
			p.AcceleratorGB = p.TotalRAMGB
		}
	}

	if vram := cudaVRAM(); vram > 0 {
		p.Accelerator = AccelCUDA
		p.AcceleratorGB = vram
	}

	L_debug("capacity: sampled profile",
		"totalGB", p.TotalRAMGB,
		"availableGB", p.AvailableRAMGB,
		"accelerator", string(p.Accelerator),
		"acceleratorGB", p.AcceleratorGB)
	return p
}

// linuxMemInfo reads MemTotal and MemAvailable from /proc/meminfo, in GB.
func linuxMemInfo() (total, available float64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = kb / (1024 * 1024)
		case "MemAvailable:":
			available = kb / (1024 * 1024)
		}
	}
	return total, available
}

// darwinMemSize shells out to sysctl for the unified memory size, in GB.
func darwinMemSize() float64 {
	out, err := exec.Command("sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return 0
	}
	bytes, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return bytes / (1024 * 1024 * 1024)
}

// cudaVRAM queries nvidia-smi for total VRAM of the first GPU, in GB.
// Returns 0 when no NVIDIA tooling is present.
func cudaVRAM() float64 {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return 0
	}
	out, err := exec.Command("nvidia-smi",
		"--query-gpu=memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0
	}
	first := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	mb, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return 0
	}
	return mb / 1024
}
