package stats

import (
	"testing"

	"cameramodules/internal/resolution"
)

func selection(id string, fallback bool) resolution.Selection {
	return resolution.Selection{
		CameraID: id,
		UseCase:  "capture",
		Target:   resolution.Size{Width: 500, Height: 400},
		Chosen:   resolution.Size{Width: 640, Height: 480},
		Distance: 140,
		Fallback: fallback,
		Catalog:  []resolution.Size{{Width: 640, Height: 480}},
	}
}

func TestSelectionLogWraps(t *testing.T) {
	l := NewSelectionLog(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		l.Record(selection(id, id == "e"))
	}

	all := l.GetAll()
	if len(all) != 3 {
		t.Fatalf("len(GetAll()) = %d, want 3", len(all))
	}
	for i, want := range []string{"c", "d", "e"} {
		if all[i].CameraID != want {
			t.Errorf("GetAll()[%d].CameraID = %q, want %q", i, all[i].CameraID, want)
		}
	}
	if all[0].ID == "" || all[0].ID == all[1].ID {
		t.Errorf("record IDs not unique: %q, %q", all[0].ID, all[1].ID)
	}
	if all[0].CatalogSize != 1 {
		t.Errorf("CatalogSize = %d, want 1", all[0].CatalogSize)
	}

	recent := l.GetRecent(2)
	if len(recent) != 2 || recent[1].CameraID != "e" {
		t.Errorf("GetRecent(2) = %+v", recent)
	}

	total, fallbacks := l.Counts()
	if total != 5 || fallbacks != 1 {
		t.Errorf("Counts() = %d, %d; want 5, 1", total, fallbacks)
	}

	l.Clear()
	if got := l.GetAll(); len(got) != 0 {
		t.Errorf("GetAll() after Clear = %v", got)
	}
}

func TestSelectionLogDefaultSize(t *testing.T) {
	l := NewSelectionLog(0)
	if l.size != DefaultHistorySize {
		t.Errorf("size = %d, want %d", l.size, DefaultHistorySize)
	}
	if got := l.GetRecent(10); len(got) != 0 {
		t.Errorf("GetRecent on empty log = %v", got)
	}
}
