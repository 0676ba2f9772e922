// Package capacity estimates hardware memory headroom and maps it to a
// whisper model size. The selection logic is pure; only Sample touches
// the host. Estimates are heuristic and advisory - a verdict of warn or
// insufficient never blocks a load.
package capacity

import (
	"github.com/voxtail/voxtail/internal/stt"
)

// AcceleratorKind identifies the inference accelerator, if any.
type AcceleratorKind string

const (
	AccelNone  AcceleratorKind = "none"
	AccelMetal AcceleratorKind = "metal"
	AccelCUDA  AcceleratorKind = "cuda"
)

// Profile is a point-in-time sample of host memory and accelerator
// presence. Not persisted; may be stale the moment it is returned.
type Profile struct {
	TotalRAMGB     float64
	AvailableRAMGB float64
	Accelerator    AcceleratorKind
	AcceleratorGB  float64
}

// Budget holds the configured memory-fraction limits.
type Budget struct {
	SystemMemoryFactor float64 // Fraction of system RAM considered usable
	VRAMFactor         float64 // Fraction of dedicated VRAM considered usable
}

// DefaultBudget mirrors the config defaults.
func DefaultBudget() Budget {
	return Budget{SystemMemoryFactor: 0.5, VRAMFactor: 0.7}
}

// Verdict classifies a model size against a profile.
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictWarn
	VerdictInsufficient
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictWarn:
		return "warn"
	default:
		return "insufficient"
	}
}

// comfortRatio is the highest footprint/usable ratio considered
// comfortable; above it a size still fits but gets a warning.
const comfortRatio = 0.7

// vramReserveGB is held back from dedicated VRAM for display/OS overhead.
const vramReserveGB = 2.0

// Usable returns the memory in GB the budget allows a model to occupy,
// and a short description of the rule applied.
func Usable(p Profile, b Budget) (float64, string) {
	if b.SystemMemoryFactor <= 0 {
		b = DefaultBudget()
	}

	if p.Accelerator == AccelCUDA && p.AcceleratorGB > 0 {
		usable := p.AcceleratorGB * b.VRAMFactor
		if capped := p.AcceleratorGB - vramReserveGB; capped < usable {
			usable = capped
		}
		if usable < 0 {
			usable = 0
		}
		return usable, "VRAM budget"
	}

	// Metal unified memory and plain system RAM share the same rule
	return p.TotalRAMGB * b.SystemMemoryFactor, "system RAM budget"
}

// Recommend returns the largest model size family whose estimated
// footprint fits comfortably within the usable memory, defaulting to
// the smallest family when nothing fits. Monotonic: more usable memory
// never yields a smaller recommendation.
func Recommend(p Profile, b Budget) string {
	usable, _ := Usable(p, b)

	best := stt.Families[0]
	for _, fam := range stt.Families {
		footprint := stt.FamilyFootprintGB[fam]
		if usable > 0 && footprint/usable <= comfortRatio {
			best = fam
		}
	}
	return best
}

// Validate classifies a user-chosen size family against the profile.
func Validate(family string, p Profile, b Budget) Verdict {
	footprint, ok := stt.FamilyFootprintGB[family]
	if !ok {
		return VerdictWarn
	}

	usable, _ := Usable(p, b)
	if usable <= 0 || footprint > usable {
		return VerdictInsufficient
	}
	if footprint/usable > comfortRatio {
		return VerdictWarn
	}
	return VerdictOK
}
