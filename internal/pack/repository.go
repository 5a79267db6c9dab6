// Package pack finds, reads and keeps track of content packages installed in
// the Steam workshop directory.
package pack

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/tepel-chen/demil/internal/model"
	"github.com/tepel-chen/demil/internal/task"
)

const (
	// ManifestFile is the manifest at the root of every package.
	ManifestFile = "modInfo.json"
	// BundleDir holds a package's payload bundles.
	BundleDir = "bundles"
)

// Repository locates packages on disk and holds the registry of loaded ones.
//
// Discover, Exists, LoadManifest and BundlePaths only touch the filesystem and
// may be called from any goroutine. The registry methods (Loaded, Register,
// Packages, Mission, Missions) belong to the host's update goroutine and take
// no lock.
type Repository struct {
	dir    string
	logger *slog.Logger

	loaded map[string]*Package
	order  []string
}

// NewRepository creates a repository over a workshop content directory.
func NewRepository(dir string, logger *slog.Logger) *Repository {
	return &Repository{
		dir:    dir,
		logger: logger,
		loaded: make(map[string]*Package),
	}
}

// Dir returns the workshop content directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Discover returns the directory a package would be installed in.
func (r *Repository) Discover(steamID string) string {
	return filepath.Join(r.dir, steamID)
}

// Exists reports whether path is a directory.
func (r *Repository) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// LoadManifest reads and validates the manifest of the package at path.
func (r *Repository) LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(path, ManifestFile))
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// BundlePaths lists the package's bundle files in name order.
func (r *Repository) BundlePaths(path string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(path, BundleDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// LoadPayload reads a bundle file on a background goroutine.
func (r *Repository) LoadPayload(file string) *task.Future[*Bundle] {
	return task.Go(func() (*Bundle, error) {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read bundle: %w", err)
		}
		return &Bundle{Path: file, raw: data}, nil
	})
}

// UnloadPayload releases a bundle's bytes once its content was taken.
func (r *Repository) UnloadPayload(b *Bundle) {
	if b == nil {
		return
	}
	b.raw = nil
	r.logger.Debug("bundle released", "path", b.Path)
}

// Loaded returns the loaded package at path.
func (r *Repository) Loaded(path string) (*Package, bool) {
	p, ok := r.loaded[path]
	return p, ok
}

// Register records a loaded package, replacing any previous one at its path.
func (r *Repository) Register(p *Package) {
	if _, ok := r.loaded[p.Path]; !ok {
		r.order = append(r.order, p.Path)
	}
	r.loaded[p.Path] = p
	r.logger.Info("package registered", "steam_id", p.SteamID, "mod_id", p.ModID(), "missions", len(p.Missions))
}

// Packages returns loaded packages in load order.
func (r *Repository) Packages() []*Package {
	out := make([]*Package, 0, len(r.order))
	for _, path := range r.order {
		out = append(out, r.loaded[path])
	}
	return out
}

// MissionPacks returns the loaded packages that only carry missions.
func (r *Repository) MissionPacks() []*Package {
	var out []*Package
	for _, p := range r.Packages() {
		if p.IsMissionPack() {
			out = append(out, p)
		}
	}
	return out
}

// MissionRef is a mission and the package it came from.
type MissionRef struct {
	Mission model.Mission
	Package *Package
}

// Missions returns every mission of every loaded package, in load order.
func (r *Repository) Missions() []MissionRef {
	var out []MissionRef
	for _, p := range r.Packages() {
		for _, m := range p.Missions {
			out = append(out, MissionRef{Mission: m, Package: p})
		}
	}
	return out
}

// Mission finds a loaded mission by id.
func (r *Repository) Mission(id string) (MissionRef, bool) {
	for _, p := range r.Packages() {
		if m, ok := p.Mission(id); ok {
			return MissionRef{Mission: m, Package: p}, true
		}
	}
	return MissionRef{}, false
}
