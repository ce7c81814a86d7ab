package version

import (
	"strings"
	"testing"
)

func TestIsPrerelease(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	tests := []struct {
		version string
		want    bool
	}{
		{"v1.2.0", false},
		{"v1.2.0-rc1", true},
		{"v0.0.0-dev", true},
	}
	for _, tt := range tests {
		Version = tt.version
		if got := IsPrerelease(); got != tt.want {
			t.Errorf("IsPrerelease() with %q = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestBuildInfoString(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()
	Version = "v1.0.0"

	s := GetBuildInfo().String()
	if !strings.HasPrefix(s, "cameramodules v1.0.0\n") {
		t.Errorf("String() = %q", s)
	}
	if !strings.Contains(Info(), "v1.0.0") {
		t.Errorf("Info() = %q", Info())
	}
}
