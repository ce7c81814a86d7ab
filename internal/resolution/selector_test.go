package resolution

import (
	"errors"
	"math/rand"
	"testing"
)

type failingSource struct{ err error }

func (f failingSource) QueryOutputSizes(string, FormatKey) ([]Size, error) {
	return nil, f.err
}

type panickingSource struct{}

func (panickingSource) QueryOutputSizes(string, FormatKey) ([]Size, error) {
	panic("driver exploded")
}

func captureSelector(sizes ...Size) *Selector {
	return NewSelector(NewCatalog(StaticSource{
		"cam0": {FormatJPEG: sizes},
	}))
}

func TestSelectResolutionScenarios(t *testing.T) {
	tests := []struct {
		name    string
		catalog []Size
		target  Size
		want    Size
	}{
		{
			name:    "closest by L1",
			catalog: []Size{{640, 480}, {1280, 720}, {1920, 1080}},
			target:  Size{500, 400},
			want:    Size{640, 480},
		},
		{
			name:    "empty catalog falls back to target",
			catalog: nil,
			target:  Size{500, 400},
			want:    Size{500, 400},
		},
		{
			name:    "duplicates return first exact match",
			catalog: []Size{{800, 600}, {800, 600}},
			target:  Size{800, 600},
			want:    Size{800, 600},
		},
		{
			name:    "tie resolves to first listed",
			catalog: []Size{{1000, 500}, {500, 1000}},
			target:  Size{750, 750},
			want:    Size{1000, 500},
		},
		{
			name:    "tie resolves to first listed reversed",
			catalog: []Size{{500, 1000}, {1000, 500}},
			target:  Size{750, 750},
			want:    Size{500, 1000},
		},
		{
			name:    "malformed entries are skipped",
			catalog: []Size{{0, 480}, {-640, 480}, {1280, 720}},
			target:  Size{640, 480},
			want:    Size{1280, 720},
		},
		{
			name:    "all malformed falls back to target",
			catalog: []Size{{0, 0}, {640, -1}},
			target:  Size{320, 240},
			want:    Size{320, 240},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := captureSelector(tt.catalog...).SelectResolution("cam0", Capture, tt.target.Width, tt.target.Height)
			if err != nil {
				t.Fatalf("SelectResolution error: %v", err)
			}
			if got != tt.want {
				t.Errorf("SelectResolution = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectScenarioADistance(t *testing.T) {
	sel, err := captureSelector(Size{640, 480}, Size{1280, 720}, Size{1920, 1080}).
		Select("cam0", Capture, Size{500, 400})
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if sel.Chosen != (Size{640, 480}) {
		t.Errorf("Chosen = %v, want 640x480", sel.Chosen)
	}
	if sel.Distance != 220 {
		t.Errorf("Distance = %d, want 220", sel.Distance)
	}
	if sel.Fallback {
		t.Error("Fallback = true, want false")
	}
	if d := Distance(Size{1280, 720}, Size{500, 400}); d != 1100 {
		t.Errorf("Distance(1280x720, 500x400) = %d, want 1100", d)
	}
}

func TestSelectInvalidTarget(t *testing.T) {
	s := captureSelector(Size{640, 480})
	for _, target := range []Size{{0, 480}, {640, 0}, {-1, 480}, {640, -5}} {
		_, err := s.SelectResolution("cam0", Capture, target.Width, target.Height)
		if !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("target %v: err = %v, want ErrInvalidTarget", target, err)
		}
	}
}

func TestSelectUnavailableCatalogFallsBack(t *testing.T) {
	sources := map[string]OutputSizeSource{
		"nil source":     nil,
		"failing source": failingSource{err: errors.New("characteristics missing")},
		"panicking":      panickingSource{},
		"unknown camera": StaticSource{"other": {FormatJPEG: {{640, 480}}}},
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			sel, err := NewSelector(NewCatalog(src)).Select("cam0", Capture, Size{500, 400})
			if err != nil {
				t.Fatalf("Select error: %v", err)
			}
			if sel.Chosen != (Size{500, 400}) || !sel.Fallback {
				t.Errorf("Select = %+v, want fallback to 500x400", sel)
			}
		})
	}
}

func TestSelectUsesUseCaseFormat(t *testing.T) {
	s := NewSelector(NewCatalog(StaticSource{
		"cam0": {
			FormatPrivate: {{1920, 1080}},
			FormatJPEG:    {{4000, 3000}},
			FormatYUV420:  {{640, 480}},
		},
	}))

	want := map[UseCase]Size{
		Preview:  {1920, 1080},
		Capture:  {4000, 3000},
		Analysis: {640, 480},
	}
	for uc, w := range want {
		got, err := s.SelectResolution("cam0", uc, 100, 100)
		if err != nil {
			t.Fatalf("%s: %v", uc, err)
		}
		if got != w {
			t.Errorf("%s: got %v, want %v", uc, got, w)
		}
	}

	got, err := s.SelectResolution("cam0", UseCase(42), 100, 100)
	if err != nil {
		t.Fatalf("unknown use case: %v", err)
	}
	if got != (Size{100, 100}) {
		t.Errorf("unknown use case: got %v, want target fallback", got)
	}
}

// Randomized check of minimality, first-minimum tie-break and positivity.
func TestClosestProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		n := rng.Intn(8)
		catalog := make([]Size, n)
		for j := range catalog {
			// Small range so ties and duplicates are common.
			catalog[j] = Size{rng.Intn(12) - 1, rng.Intn(12) - 1}
		}
		target := Size{rng.Intn(10) + 1, rng.Intn(10) + 1}

		got, err := captureSelector(catalog...).SelectResolution("cam0", Capture, target.Width, target.Height)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if !got.Valid() {
			t.Fatalf("case %d: non-positive result %v", i, got)
		}

		firstIdx := -1
		for j, c := range catalog {
			if !c.Valid() {
				continue
			}
			if firstIdx < 0 || Distance(c, target) < Distance(catalog[firstIdx], target) {
				firstIdx = j
			}
		}
		if firstIdx < 0 {
			if got != target {
				t.Errorf("case %d: catalog %v has no valid entry, got %v, want %v", i, catalog, got, target)
			}
			continue
		}
		if got != catalog[firstIdx] {
			t.Errorf("case %d: catalog %v target %v: got %v, want %v", i, catalog, target, got, catalog[firstIdx])
		}
		for _, c := range catalog {
			if c.Valid() && Distance(got, target) > Distance(c, target) {
				t.Errorf("case %d: %v is closer than chosen %v", i, c, got)
			}
		}
	}
}
