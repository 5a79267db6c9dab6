// Package validate decides whether a mission can be started with the modules
// and limits the host currently offers.
package validate

import (
	"slices"
	"strings"

	"github.com/tepel-chen/demil/internal/fault"
	"github.com/tepel-chen/demil/internal/host"
	"github.com/tepel-chen/demil/internal/model"
)

// Reasons a mission cannot be started.
const (
	ReasonBombs     = "bombs"
	ReasonMissing   = "missing_modules"
	ReasonModules   = "modules"
	ReasonFrontFace = "front_face"
)

// Env is what the host offers.
type Env struct {
	Modules             []string
	MaxModules          int
	MaxFrontFaceModules int
	MultipleBombs       bool
	MaxBombs            int
}

// EnvFrom captures the host's current offer.
func EnvFrom(h host.Host) Env {
	mb, maxBombs := h.MultipleBombs()
	return Env{
		Modules:             h.AvailableModules(),
		MaxModules:          h.MaxModules(),
		MaxFrontFaceModules: h.MaxFrontFaceModules(),
		MultipleBombs:       mb,
		MaxBombs:            maxBombs,
	}
}

// Report is the outcome of Check. Limit and Count are set for limit failures,
// Missing for missing modules.
type Report struct {
	OK        bool
	MissionID string
	Reason    string
	Missing   []string
	Limit     int
	Count     int
}

// Check tests, in order: the bomb count when multiple bombs are installed,
// that every mod module is available, the total module limit, and the
// front-face limit for front-face-only missions. The first failure is
// reported.
func Check(m model.Mission, env Env) Report {
	r := Report{MissionID: m.ID}

	var pools []model.ComponentPool
	if env.MultipleBombs {
		mb := model.ReadMultipleBombs(m)
		if mb.BombCount > env.MaxBombs {
			r.Reason, r.Limit, r.Count = ReasonBombs, env.MaxBombs, mb.BombCount
			return r
		}
		pools = mb.ComponentPools()
	} else if m.Generator != nil {
		pools = m.Generator.ComponentPools
	}

	count := 0
	for _, p := range pools {
		count += p.Count
		for _, mod := range p.ModTypes {
			if !slices.Contains(env.Modules, mod) && !slices.Contains(r.Missing, mod) {
				r.Missing = append(r.Missing, mod)
			}
		}
	}
	r.Count = count

	switch {
	case len(r.Missing) > 0:
		r.Reason = ReasonMissing
	case count > env.MaxModules:
		r.Reason, r.Limit = ReasonModules, env.MaxModules
	case m.Generator != nil && m.Generator.FrontFaceOnly && count > env.MaxFrontFaceModules:
		r.Reason, r.Limit = ReasonFrontFace, env.MaxFrontFaceModules
	default:
		r.OK = true
	}
	return r
}

// Err returns a capability fault describing a failed report, or nil.
func (r Report) Err() error {
	switch r.Reason {
	case "":
		return nil
	case ReasonBombs:
		return fault.Capabilityf("mission %q requires %d bombs, maximum supported is %d", r.MissionID, r.Count, r.Limit)
	case ReasonMissing:
		return fault.Capabilityf("mission %q requires missing modules: %s", r.MissionID, strings.Join(r.Missing, ", "))
	case ReasonModules:
		return fault.Capabilityf("mission %q requires %d modules, maximum supported is %d", r.MissionID, r.Count, r.Limit)
	case ReasonFrontFace:
		return fault.Capabilityf("mission %q requires %d front face modules, maximum supported is %d", r.MissionID, r.Count, r.Limit)
	default:
		return fault.Capabilityf("mission %q cannot be started: %s", r.MissionID, r.Reason)
	}
}
