// Package update handles version checks and self-updating of the vibe binary.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creativeprojects/go-selfupdate"
)

const (
	repoOwner     = "vibecli"
	repoName      = "vibe"
	checkInterval = 24 * time.Hour
)

// checkCache records the result of the last release lookup so routine
// commands only hit GitHub once per day.
type checkCache struct {
	LastCheck       time.Time `json:"last_check"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

func cachePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "vibe", "update-cache.json")
}

func loadCache() *checkCache {
	path := cachePath()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cache checkCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil
	}
	return &cache
}

func saveCache(cache *checkCache) {
	path := cachePath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0644)
}

// InstallMethod represents how vibe was installed.
type InstallMethod int

const (
	InstallUnknown InstallMethod = iota
	InstallHomebrew
	InstallScript
)

func (m InstallMethod) String() string {
	switch m {
	case InstallHomebrew:
		return "homebrew"
	case InstallScript:
		return "script"
	default:
		return "unknown"
	}
}

// DetectInstallMethod inspects the binary path to tell a Homebrew install
// from a script or go-install one.
func DetectInstallMethod() InstallMethod {
	exe, err := os.Executable()
	if err != nil {
		return InstallUnknown
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return InstallUnknown
	}

	if strings.Contains(exe, "/Cellar/") ||
		strings.HasPrefix(exe, "/opt/homebrew/") ||
		strings.HasPrefix(exe, "/usr/local/Homebrew/") ||
		strings.Contains(exe, "linuxbrew") {
		return InstallHomebrew
	}
	return InstallScript
}

// Release describes an available release.
type Release struct {
	Version    string
	ReleaseURL string
}

func newUpdater() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{Source: source})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}
	return updater, nil
}

func detectLatest(updater *selfupdate.Updater) (*selfupdate.Release, bool, error) {
	latest, found, err := updater.DetectLatest(context.Background(), selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, false, fmt.Errorf("failed to detect latest version: %w", err)
	}
	return latest, found, nil
}

// CheckForUpdate reports the latest release and whether it is newer than
// the running version. Dev builds are never offered updates.
func CheckForUpdate(currentVersion string) (*Release, bool, error) {
	current := strings.TrimPrefix(currentVersion, "v")
	if current == "dev" || current == "" {
		return nil, false, nil
	}

	updater, err := newUpdater()
	if err != nil {
		return nil, false, err
	}
	latest, found, err := detectLatest(updater)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	release := &Release{
		Version:    latest.Version(),
		ReleaseURL: latest.ReleaseNotes,
	}
	if strings.TrimPrefix(latest.Version(), "v") == current {
		return release, false, nil
	}
	return release, latest.GreaterThan(current), nil
}

// Update downloads and installs the latest release over the current binary.
// Homebrew installs are refused so brew stays the owner of that binary.
func Update(currentVersion string) error {
	if DetectInstallMethod() == InstallHomebrew {
		return fmt.Errorf("vibe was installed via Homebrew. Please run: brew upgrade vibecli/tap/vibe")
	}

	current := strings.TrimPrefix(currentVersion, "v")
	if current == "dev" || current == "" {
		return fmt.Errorf("cannot update dev builds")
	}

	updater, err := newUpdater()
	if err != nil {
		return err
	}
	latest, found, err := detectLatest(updater)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no releases found")
	}
	if !latest.GreaterThan(current) {
		return fmt.Errorf("already at latest version (%s)", currentVersion)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if err := updater.UpdateTo(context.Background(), latest, exe); err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}
	return nil
}

// CheckPeriodically checks for updates at most once per checkInterval and
// returns a notice string when a newer release exists. Meant to run at the
// start of common commands, so failures stay silent.
func CheckPeriodically(currentVersion string) string {
	current := strings.TrimPrefix(currentVersion, "v")
	if current == "dev" || current == "" {
		return ""
	}

	if cache := loadCache(); cache != nil && time.Since(cache.LastCheck) < checkInterval {
		// The operator may have upgraded since the cache was written,
		// so re-verify the cached version against the running one.
		if cache.UpdateAvailable && cache.LatestVersion != "" {
			cachedLatest := strings.TrimPrefix(cache.LatestVersion, "v")
			if cachedLatest != current && isNewerVersion(cachedLatest, current) {
				return formatUpdateNotice(currentVersion, cache.LatestVersion)
			}
		}
		return ""
	}

	release, hasUpdate, err := CheckForUpdate(currentVersion)

	cache := &checkCache{
		LastCheck:       time.Now(),
		UpdateAvailable: hasUpdate && err == nil,
	}
	if release != nil {
		cache.LatestVersion = release.Version
	}
	saveCache(cache)

	if err != nil || !hasUpdate {
		return ""
	}
	return formatUpdateNotice(currentVersion, release.Version)
}

// isNewerVersion compares major.minor.patch numerically.
func isNewerVersion(a, b string) bool {
	parse := func(v string) (int, int, int) {
		v = strings.TrimPrefix(v, "v")
		parts := strings.Split(v, ".")
		var major, minor, patch int
		if len(parts) >= 1 {
			_, _ = fmt.Sscanf(parts[0], "%d", &major)
		}
		if len(parts) >= 2 {
			_, _ = fmt.Sscanf(parts[1], "%d", &minor)
		}
		if len(parts) >= 3 {
			_, _ = fmt.Sscanf(parts[2], "%d", &patch)
		}
		return major, minor, patch
	}

	aMajor, aMinor, aPatch := parse(a)
	bMajor, bMinor, bPatch := parse(b)
	if aMajor != bMajor {
		return aMajor > bMajor
	}
	if aMinor != bMinor {
		return aMinor > bMinor
	}
	return aPatch > bPatch
}

func formatUpdateNotice(current, latest string) string {
	cmd := "vibe upgrade"
	if DetectInstallMethod() == InstallHomebrew {
		cmd = "brew upgrade vibecli/tap/vibe"
	}
	return fmt.Sprintf("Update available: %s -> %s (run: %s)", current, latest, cmd)
}
