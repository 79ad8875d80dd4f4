package update

import (
	"testing"
	"time"
)

func TestIsNewerVersion(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"1.2.3", "1.2.2", true},
		{"1.2.3", "1.2.3", false},
		{"1.2.3", "1.2.4", false},
		{"2.0.0", "1.9.9", true},
		{"1.10.0", "1.9.0", true},
		{"v1.1.0", "1.0.0", true},
		{"0.2", "0.1.9", true},
	}
	for _, tc := range cases {
		if got := isNewerVersion(tc.a, tc.b); got != tc.want {
			t.Errorf("isNewerVersion(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCacheRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if got := loadCache(); got != nil {
		t.Errorf("loadCache() = %v, want nil before any save", got)
	}

	saved := &checkCache{
		LastCheck:       time.Now().Truncate(time.Second),
		LatestVersion:   "v1.2.3",
		UpdateAvailable: true,
	}
	saveCache(saved)

	got := loadCache()
	if got == nil {
		t.Fatal("loadCache() = nil after save")
	}
	if got.LatestVersion != "v1.2.3" || !got.UpdateAvailable {
		t.Errorf("loadCache() = %+v, want %+v", got, saved)
	}
	if !got.LastCheck.Equal(saved.LastCheck) {
		t.Errorf("LastCheck = %v, want %v", got.LastCheck, saved.LastCheck)
	}
}

func TestCheckPeriodicallySkipsDevBuilds(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if notice := CheckPeriodically("dev"); notice != "" {
		t.Errorf("CheckPeriodically(dev) = %q, want empty", notice)
	}
	if notice := CheckPeriodically(""); notice != "" {
		t.Errorf("CheckPeriodically(\"\") = %q, want empty", notice)
	}
}
