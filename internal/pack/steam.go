package pack

import (
	"os"
	"path/filepath"
)

// AppID is the workshop app id whose content holds the packages.
const AppID = "341800"

// steamHomePaths are Steam installs relative to $HOME.
var steamHomePaths = []string{
	filepath.Join("Library", "Application Support", "Steam"),
	filepath.Join(".steam", "steam"),
}

// FindSteamDirectory guesses the Steam install directory. A working directory
// two levels below "steamapps" wins; otherwise the usual per-user installs are
// tried, following symlinks. It returns "" when nothing is found.
func FindSteamDirectory(home, cwd string) string {
	if cwd != "" {
		apps := filepath.Dir(filepath.Dir(filepath.Clean(cwd)))
		if filepath.Base(apps) == "steamapps" {
			return filepath.Dir(apps)
		}
	}
	if home == "" {
		return ""
	}
	for _, rel := range steamHomePaths {
		dir := filepath.Join(home, rel)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if target, err := filepath.EvalSymlinks(dir); err == nil {
			return target
		}
		return dir
	}
	return ""
}

// WorkshopDir returns the workshop content directory under a Steam install.
func WorkshopDir(steamDir string) string {
	if steamDir == "" {
		return ""
	}
	return filepath.Join(steamDir, "steamapps", "workshop", "content", AppID)
}

// DefaultWorkshopDir locates the workshop directory for the current user.
func DefaultWorkshopDir() string {
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return WorkshopDir(FindSteamDirectory(home, cwd))
}
