package stt

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetModel(t *testing.T) {
	m := GetModel("ggml-base.en.bin")
	if m == nil {
		t.Fatal("base.en missing from catalog")
	}
	if m.Family != "base" {
		t.Errorf("family = %q", m.Family)
	}
	if GetModel("ggml-imaginary.bin") != nil {
		t.Error("unknown model should return nil")
	}
}

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"ggml-tiny.en.bin", "tiny"},
		{"ggml-large-v3.bin", "large"},
		// Not in the catalog but follows the naming convention.
		{"ggml-medium.en.bin", "medium"},
		{"ggml-large-v2.bin", "large"},
		{"random.bin", ""},
	}
	for _, tt := range tests {
		if got := FamilyOf(tt.name); got != tt.want {
			t.Errorf("FamilyOf(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCatalogFamiliesAreKnown(t *testing.T) {
	for _, m := range WhisperModels {
		if _, ok := FamilyFootprintGB[m.Family]; !ok {
			t.Errorf("model %s has unknown family %q", m.Name, m.Family)
		}
	}
	for _, fam := range Families {
		if DefaultModelForFamily(fam) == nil {
			t.Errorf("family %q has no default model", fam)
		}
	}
}

func TestFamilyFootprintsAreMonotonic(t *testing.T) {
	prev := 0.0
	for _, fam := range Families {
		fp := FamilyFootprintGB[fam]
		if fp < prev {
			t.Fatalf("footprint of %q (%.1f) smaller than previous family", fam, fp)
		}
		prev = fp
	}
}

func TestIsModelDownloaded(t *testing.T) {
	dir := t.TempDir()

	if IsModelDownloaded(dir, "ggml-base.en.bin") {
		t.Error("missing file reported as downloaded")
	}
	if IsModelDownloaded("", "ggml-base.en.bin") || IsModelDownloaded(dir, "") {
		t.Error("empty inputs must report not downloaded")
	}

	path := filepath.Join(dir, "ggml-base.en.bin")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if IsModelDownloaded(dir, "ggml-base.en.bin") {
		t.Error("zero-byte file must not count as downloaded")
	}

	if err := os.WriteFile(path, []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}
	if !IsModelDownloaded(dir, "ggml-base.en.bin") {
		t.Error("present file reported as missing")
	}
}
