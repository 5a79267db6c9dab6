package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// vanillaComponents lists the built-in component types in enum order, as
// mission files written by the host's editor number them.
var vanillaComponents = []string{
	"Empty",
	"Timer",
	"Wires",
	"BigButton",
	"Morse",
	"Simon",
	"Password",
	"Keypad",
	"WhosOnFirst",
	"Memory",
	"Maze",
	"Venn",
	"WireSequence",
	"NeedyCapacitor",
	"NeedyVentGas",
	"NeedyKnob",
	"Mod",
	"NeedyMod",
}

// ComponentType is a built-in module type name. It decodes from either the
// name or its enum number.
type ComponentType string

func (c *ComponentType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = ComponentType(name)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("component type: %s", data)
	}
	if n < 0 || n >= len(vanillaComponents) {
		*c = ComponentType(strconv.Itoa(n))
		return nil
	}
	*c = ComponentType(vanillaComponents[n])
	return nil
}

// Sources is the set of component sources a pool may draw from.
type Sources uint8

// Source flags.
const (
	FromBase Sources = 1 << iota
	FromMods
)

// Names returns the lower-case source names in the set.
func (s Sources) Names() []string {
	var out []string
	if s&FromBase != 0 {
		out = append(out, SourceBase)
	}
	if s&FromMods != 0 {
		out = append(out, SourceMods)
	}
	return out
}

func (s Sources) MarshalJSON() ([]byte, error) {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

// UnmarshalJSON accepts flag numbers, comma separated names or name lists.
func (s *Sources) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = Sources(n) & (FromBase | FromMods)
		return nil
	}
	var names []string
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		names = strings.Split(joined, ",")
	} else if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("allowed sources: %s", data)
	}
	var out Sources
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case SourceBase:
			out |= FromBase
		case SourceMods:
			out |= FromMods
		case "":
		default:
			return fmt.Errorf("allowed sources: unknown source %q", name)
		}
	}
	*s = out
	return nil
}

// Special is a special component pool type.
type Special string

// specialByNumber follows the host's enum numbering.
var specialByNumber = []Special{SpecialNone, SpecialAllSolvable, SpecialAllNeedy}

// UnmarshalJSON accepts the enum name or number.
func (p *Special) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 || n >= len(specialByNumber) {
			return fmt.Errorf("special component type: %d", n)
		}
		*p = specialByNumber[n]
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("special component type: %s", data)
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "NONE" {
		name = ""
	}
	*p = Special(name)
	return nil
}
