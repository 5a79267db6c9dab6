// Package host defines what the command service needs from the host
// application: its phase, run control, module limits and version. Sim is an
// in-process host for the service binaries and tests.
package host

import (
	"github.com/tepel-chen/demil/internal/model"
	"github.com/tepel-chen/demil/internal/task"
)

// Phase is the host's current state.
type Phase string

// Host phases.
const (
	PhaseSetup    Phase = "setup"
	PhaseGameplay Phase = "gameplay"
	PhasePostGame Phase = "postgame"
)

// Host is the host application as seen from request handlers. Every method is
// called on the host's update goroutine and must return promptly; work that
// spans frames is returned as a task.
type Host interface {
	// Phase reports the current phase.
	Phase() Phase
	// BeginRun starts the mission with the given seed.
	BeginRun(missionID, seed string) error
	// AvailableModules lists the installed mod module ids.
	AvailableModules() []string
	// MaxModules is the largest module count a bomb may hold.
	MaxModules() int
	// MaxFrontFaceModules is the largest module count a front-face-only bomb
	// may hold.
	MaxFrontFaceModules() int
	// MultipleBombs reports whether the multiple-bombs extension is installed
	// and the bomb count it supports.
	MultipleBombs() (installed bool, maxBombs int)
	// Refresh redraws the mission binder after packages change.
	Refresh()
	// DisablePackage marks a package disabled for the next commit.
	DisablePackage(steamID string) error
	// CommitDisablement applies pending disablements.
	CommitDisablement() task.Sequence
	// Version reports version metadata.
	Version() (model.VersionInfo, error)
}
