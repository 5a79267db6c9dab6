package model

import (
	"fmt"
	"net/url"
)

// LoadURL returns the command URL that loads the package with steamID.
func LoadURL(port int, steamID string) string {
	return fmt.Sprintf("http://localhost:%d/loadMission?steamID=%s", port, url.QueryEscape(steamID))
}

// DetailURL returns the command URL that describes the package with steamID.
func DetailURL(port int, steamID string) string {
	return fmt.Sprintf("http://localhost:%d/missionDetail?steamID=%s", port, url.QueryEscape(steamID))
}

// StartURL returns the command URL that starts a mission.
func StartURL(port int, steamID, missionID string) string {
	return fmt.Sprintf("http://localhost:%d/startMission?steamID=%s&missionID=%s",
		port, url.QueryEscape(steamID), url.QueryEscape(missionID))
}

// CatalogEntry is one known mission pack.
type CatalogEntry struct {
	SteamID   string `json:"SteamID"`
	ModID     string `json:"ModID"`
	Title     string `json:"Title"`
	LoadURL   string `json:"LoadURL"`
	DetailURL string `json:"DetailURL"`
}

// NewCatalogEntry builds an entry with its command URLs.
func NewCatalogEntry(steamID, modID, title string, port int) CatalogEntry {
	return CatalogEntry{
		SteamID:   steamID,
		ModID:     modID,
		Title:     title,
		LoadURL:   LoadURL(port, steamID),
		DetailURL: DetailURL(port, steamID),
	}
}

// MergeCatalog returns the union of the given lists, keeping the first entry
// seen for each SteamID.
func MergeCatalog(lists ...[]CatalogEntry) []CatalogEntry {
	seen := make(map[string]bool)
	out := []CatalogEntry{}
	for _, list := range lists {
		for _, e := range list {
			if seen[e.SteamID] {
				continue
			}
			seen[e.SteamID] = true
			out = append(out, e)
		}
	}
	return out
}

// MissionPackData describes a loaded mission pack. Exactly one of Missions and
// ToCs is set.
type MissionPackData struct {
	SteamID  string        `json:"SteamID"`
	ModID    string        `json:"ModID"`
	Title    string        `json:"Title"`
	Missions []MissionData `json:"Missions"`
	ToCs     []ToCData     `json:"ToCs"`
	LoadURL  string        `json:"LoadURL"`
}

// MissionData describes one mission and how to start it.
type MissionData struct {
	Title       string      `json:"Title"`
	MissionID   string      `json:"MissionID"`
	Description string      `json:"Description"`
	FactoryMode string      `json:"FactoryMode"`
	BombData    []*BombData `json:"BombData"`
	BombCount   int         `json:"BombCount"`
	StartURL    string      `json:"StartURL"`
}

// BombData describes one bomb of a mission. ComponentPools holds one entry per
// module slot, listing the module types the slot may draw from.
type BombData struct {
	TimeLimit                 float64    `json:"TimeLimit"`
	NumStrikes                int        `json:"NumStrikes"`
	TimeBeforeNeedyActivation int        `json:"TimeBeforeNeedyActivation"`
	FrontFaceOnly             bool       `json:"FrontFaceOnly"`
	OptionalWidgetCount       int        `json:"OptionalWidgetCount"`
	ComponentPools            [][]string `json:"ComponentPools"`
}

// ToCData is a table of contents with its missions resolved.
type ToCData struct {
	Title    string        `json:"Title"`
	Sections []SectionData `json:"Sections"`
}

// SectionData is one table of contents section.
type SectionData struct {
	Title      string        `json:"Title"`
	SectionNum int           `json:"SectionNum"`
	Missions   []MissionData `json:"Missions"`
}

// NewMissionPackData describes a pack's missions, either as a flat list or
// grouped by its tables of contents.
func NewMissionPackData(steamID, modID, title string, missions []Mission, tocs []TableOfContents, port int, grouped bool) MissionPackData {
	data := make([]MissionData, 0, len(missions))
	for _, m := range missions {
		data = append(data, NewMissionData(steamID, m, port))
	}

	out := MissionPackData{
		SteamID: steamID,
		ModID:   modID,
		Title:   title,
		LoadURL: LoadURL(port, steamID),
	}
	if grouped {
		out.ToCs = groupByToC(data, tocs)
	} else {
		out.Missions = data
	}
	return out
}

// NewMissionData describes one mission. Bombs that use bomb 0's generator
// implicitly are reported as nil.
func NewMissionData(steamID string, m Mission, port int) MissionData {
	mb := ReadMultipleBombs(m)
	bombs := make([]*BombData, mb.BombCount)
	for i := range bombs {
		if g, ok := mb.Generators[i]; ok {
			bombs[i] = NewBombData(g)
		}
	}
	return MissionData{
		Title:       m.DisplayName,
		MissionID:   m.ID,
		Description: m.Description,
		FactoryMode: m.FactoryMode,
		BombData:    bombs,
		BombCount:   mb.BombCount,
		StartURL:    StartURL(port, steamID, m.ID),
	}
}

// NewBombData expands a generator's pools into per-slot module lists.
func NewBombData(g GeneratorSetting) *BombData {
	pools := [][]string{}
	for _, p := range g.ComponentPools {
		var slot []string
		if name := specialComponent(p.SpecialComponentType, p.AllowedSources); name != "" {
			slot = []string{name}
		} else {
			slot = make([]string, 0, len(p.ComponentTypes)+len(p.ModTypes))
			for _, c := range p.ComponentTypes {
				slot = append(slot, string(c))
			}
			slot = append(slot, p.ModTypes...)
		}
		for range p.Count {
			pools = append(pools, slot)
		}
	}
	return &BombData{
		TimeLimit:                 g.TimeLimit,
		NumStrikes:                g.NumStrikes,
		TimeBeforeNeedyActivation: g.TimeBeforeNeedyActivation,
		FrontFaceOnly:             g.FrontFaceOnly,
		OptionalWidgetCount:       g.OptionalWidgetCount,
		ComponentPools:            pools,
	}
}

// specialComponent names a special pool, or returns "" for a regular one.
func specialComponent(t Special, src Sources) string {
	var prefix string
	switch src {
	case FromBase | FromMods:
		prefix = "ALL_"
	case FromBase:
		prefix = "ALL_VANILLA"
	case FromMods:
		prefix = "ALL_MODS"
	default:
		return ""
	}
	switch t {
	case SpecialAllNeedy:
		if prefix == "ALL_" {
			return "ALL_NEEDY"
		}
		return prefix + "_NEEDY"
	case SpecialAllSolvable:
		if prefix == "ALL_" {
			return "ALL_SOLVABLE"
		}
		return prefix
	default:
		return ""
	}
}

// groupByToC resolves table of contents sections to mission data, dropping
// unknown mission ids and sections left empty.
func groupByToC(data []MissionData, tocs []TableOfContents) []ToCData {
	byID := make(map[string]MissionData, len(data))
	for _, d := range data {
		if _, ok := byID[d.MissionID]; !ok {
			byID[d.MissionID] = d
		}
	}

	out := make([]ToCData, 0, len(tocs))
	for _, toc := range tocs {
		sections := []SectionData{}
		for _, s := range toc.Sections {
			var missions []MissionData
			for _, id := range s.MissionIDs {
				if d, ok := byID[id]; ok {
					missions = append(missions, d)
				}
			}
			if len(missions) == 0 {
				continue
			}
			sections = append(sections, SectionData{Title: s.Title, SectionNum: s.SectionNum, Missions: missions})
		}
		out = append(out, ToCData{Title: toc.DisplayName, Sections: sections})
	}
	return out
}
