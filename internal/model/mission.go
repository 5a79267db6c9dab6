package model

// Component sources allowed by a pool.
const (
	SourceBase = "base"
	SourceMods = "mods"
)

// Special component pool types.
const (
	SpecialNone        Special = ""
	SpecialAllSolvable Special = "ALL_SOLVABLE"
	SpecialAllNeedy    Special = "ALL_NEEDY"
)

// ComponentPool is one pool of modules a generator draws from.
type ComponentPool struct {
	Count                int             `json:"count"`
	ComponentTypes       []ComponentType `json:"componentTypes,omitempty"`
	ModTypes             []string        `json:"modTypes,omitempty"`
	SpecialComponentType Special         `json:"specialComponentType,omitempty"`
	AllowedSources       Sources         `json:"allowedSources,omitempty"`
}

// GeneratorSetting describes how one bomb is generated.
type GeneratorSetting struct {
	TimeLimit                 float64         `json:"timeLimit"`
	NumStrikes                int             `json:"numStrikes"`
	TimeBeforeNeedyActivation int             `json:"timeBeforeNeedyActivation"`
	FrontFaceOnly             bool            `json:"frontFaceOnly"`
	OptionalWidgetCount       int             `json:"optionalWidgetCount"`
	ComponentPools            []ComponentPool `json:"componentPools"`
}

// ComponentCount returns the number of modules the generator places.
func (g GeneratorSetting) ComponentCount() int {
	n := 0
	for _, p := range g.ComponentPools {
		n += p.Count
	}
	return n
}

// Clone returns a deep copy of g.
func (g GeneratorSetting) Clone() GeneratorSetting {
	out := g
	out.ComponentPools = make([]ComponentPool, len(g.ComponentPools))
	for i, p := range g.ComponentPools {
		p.ComponentTypes = append([]ComponentType(nil), p.ComponentTypes...)
		p.ModTypes = append([]string(nil), p.ModTypes...)
		out.ComponentPools[i] = p
	}
	return out
}

// Mission is a run definition bundled in a content package.
type Mission struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Description string            `json:"description,omitempty"`
	FactoryMode string            `json:"factoryMode,omitempty"`
	Generator   *GeneratorSetting `json:"generator,omitempty"`
}

// Section groups missions inside a table of contents.
type Section struct {
	Title      string   `json:"title"`
	SectionNum int      `json:"sectionNum"`
	MissionIDs []string `json:"missionIds"`
}

// TableOfContents is a binder page listing a package's missions.
type TableOfContents struct {
	DisplayName string    `json:"displayName"`
	Sections    []Section `json:"sections"`
}
