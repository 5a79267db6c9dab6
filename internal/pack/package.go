package pack

import (
	"encoding/json"
	"fmt"

	"github.com/tepel-chen/demil/internal/model"
)

// Manifest is a package's modInfo.json.
type Manifest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Version     string `json:"version,omitempty"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
}

func (m Manifest) validate() error {
	if m.ID == "" {
		return fmt.Errorf("manifest has no id")
	}
	return nil
}

// Payload is the content of one bundle file.
type Payload struct {
	Missions       []model.Mission         `json:"missions"`
	ToCs           []model.TableOfContents `json:"tocs"`
	BombModules    []string                `json:"bombModules"`
	NeedyModules   []string                `json:"needyModules"`
	SoundOverrides []string                `json:"soundOverrides"`
}

// Bundle is a bundle file read from disk and not yet released.
type Bundle struct {
	Path string
	raw  []byte
}

// Released reports whether the bundle's bytes were dropped.
func (b *Bundle) Released() bool {
	return b.raw == nil
}

// Package is a loaded content package.
type Package struct {
	SteamID  string
	Path     string
	Manifest Manifest

	Missions       []model.Mission
	ToCs           []model.TableOfContents
	BombModules    []string
	NeedyModules   []string
	SoundOverrides []string
}

// ModID returns the id declared in the manifest.
func (p *Package) ModID() string { return p.Manifest.ID }

// Title returns the title declared in the manifest.
func (p *Package) Title() string { return p.Manifest.Title }

// IsMissionPack reports whether the package only carries missions.
func (p *Package) IsMissionPack() bool {
	return len(p.BombModules) == 0 &&
		len(p.NeedyModules) == 0 &&
		len(p.SoundOverrides) == 0 &&
		len(p.Missions) > 0
}

// Mission returns the mission with the given id.
func (p *Package) Mission(id string) (model.Mission, bool) {
	for _, m := range p.Missions {
		if m.ID == id {
			return m, true
		}
	}
	return model.Mission{}, false
}

// CatalogEntry describes the package for the catalog.
func (p *Package) CatalogEntry(port int) model.CatalogEntry {
	return model.NewCatalogEntry(p.SteamID, p.ModID(), p.Title(), port)
}

// Data describes the package's missions, flat or grouped by table of contents.
func (p *Package) Data(port int, grouped bool) model.MissionPackData {
	return model.NewMissionPackData(p.SteamID, p.ModID(), p.Title(), p.Missions, p.ToCs, port, grouped)
}

// LoadBundle decodes a bundle into the package.
func (p *Package) LoadBundle(b *Bundle) error {
	if b.Released() {
		return fmt.Errorf("bundle %s was already released", b.Path)
	}
	var payload Payload
	if err := json.Unmarshal(b.raw, &payload); err != nil {
		return fmt.Errorf("decode bundle %s: %w", b.Path, err)
	}
	p.Missions = append(p.Missions, payload.Missions...)
	p.ToCs = append(p.ToCs, payload.ToCs...)
	p.BombModules = append(p.BombModules, payload.BombModules...)
	p.NeedyModules = append(p.NeedyModules, payload.NeedyModules...)
	p.SoundOverrides = append(p.SoundOverrides, payload.SoundOverrides...)
	return nil
}
