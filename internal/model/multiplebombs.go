package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// multipleBombsModType marks pools that request extra bombs instead of
// modules when the multiple-bombs extension is installed.
const multipleBombsModType = "Multiple Bombs"

// MultipleBombs is a mission read with the multiple-bombs extension's rules.
type MultipleBombs struct {
	BombCount int
	// Generators maps bomb index to its generator. Index 0 is always present
	// when the mission has a generator.
	Generators map[int]GeneratorSetting
}

// ReadMultipleBombs extracts the bomb count and per-bomb generators encoded in
// a mission's component pools. A pool whose only mod type is "Multiple Bombs"
// adds Count bombs; a pool whose only mod type is
// "Multiple Bombs:<index>:<generator json>" gives bomb <index> its own
// generator. Both kinds of pool are removed from bomb 0's generator.
// Malformed per-bomb entries are left in place. The mission is not modified.
func ReadMultipleBombs(m Mission) MultipleBombs {
	d := MultipleBombs{BombCount: 1, Generators: make(map[int]GeneratorSetting)}
	if m.Generator == nil {
		return d
	}

	g := m.Generator.Clone()
	for i := len(g.ComponentPools) - 1; i >= 0; i-- {
		pool := g.ComponentPools[i]
		if len(pool.ModTypes) != 1 {
			continue
		}
		modType := pool.ModTypes[0]

		switch {
		case modType == multipleBombsModType:
			d.BombCount += pool.Count
		case strings.HasPrefix(modType, multipleBombsModType+":"):
			parts := strings.SplitN(modType, ":", 3)
			if len(parts) != 3 {
				continue
			}
			index, err := strconv.Atoi(parts[1])
			if err != nil || index == 0 {
				continue
			}
			if _, exists := d.Generators[index]; exists {
				continue
			}
			var setting GeneratorSetting
			if err := json.Unmarshal([]byte(parts[2]), &setting); err != nil {
				continue
			}
			d.Generators[index] = setting
		default:
			continue
		}
		g.ComponentPools = append(g.ComponentPools[:i], g.ComponentPools[i+1:]...)
	}

	d.Generators[0] = g
	return d
}

// ComponentPools returns the pools of every explicitly configured bomb.
func (d MultipleBombs) ComponentPools() []ComponentPool {
	var pools []ComponentPool
	for i := 0; i < d.BombCount; i++ {
		if g, ok := d.Generators[i]; ok {
			pools = append(pools, g.ComponentPools...)
		}
	}
	return pools
}
