package alignment

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestBandWindow(t *testing.T) {
	b := Band{Name: "name", Top: 0.20, Bottom: 0.40}
	win := b.Window(800, 600)

	if win.Y != 120 || win.Height != 120 {
		t.Errorf("window rows = [%d, %d), want [120, 240)", win.Y, win.Y+win.Height)
	}
	if win.X != 0 || win.Width != 800 {
		t.Errorf("window should span the full width, got x=%d w=%d", win.X, win.Width)
	}
}

func TestValidateBands(t *testing.T) {
	cases := []struct {
		name  string
		bands []Band
		ok    bool
	}{
		{"defaults", DefaultBands(), true},
		{"empty", nil, false},
		{"unnamed", []Band{{Top: 0.1, Bottom: 0.2}}, false},
		{"duplicate", []Band{{Name: "a", Top: 0.1, Bottom: 0.2}, {Name: "a", Top: 0.3, Bottom: 0.4}}, false},
		{"inverted", []Band{{Name: "a", Top: 0.5, Bottom: 0.2}}, false},
		{"out of range", []Band{{Name: "a", Top: -0.1, Bottom: 0.2}}, false},
		{"overlapping is fine", []Band{{Name: "a", Top: 0.1, Bottom: 0.6}, {Name: "b", Top: 0.5, Bottom: 0.9}}, true},
	}

	for _, tc := range cases {
		err := ValidateBands(tc.bands)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestBandsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bands.json")
	want := []Band{
		{Name: "name", Top: 0.22, Bottom: 0.38},
		{Name: "event", Top: 0.41, Bottom: 0.57},
	}

	if err := SaveBands(path, want); err != nil {
		t.Fatalf("SaveBands: %v", err)
	}
	got, err := LoadBands(path)
	if err != nil {
		t.Fatalf("LoadBands: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestLoadBandsRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bands.json")
	if err := SaveBands(path, []Band{{Name: "a", Top: 0.9, Bottom: 0.1}}); err == nil {
		t.Fatal("SaveBands should reject inverted ranges")
	}
	if _, err := LoadBands(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("LoadBands should fail for a missing file")
	}
}

func TestFieldNames(t *testing.T) {
	got := FieldNames(DefaultBands())
	want := []string{"name", "event", "organiser"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FieldNames = %v, want %v", got, want)
	}
}
