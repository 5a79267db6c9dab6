package host

import (
	"slices"
	"sync"
	"time"

	"github.com/tepel-chen/demil/internal/fault"
	"github.com/tepel-chen/demil/internal/model"
	"github.com/tepel-chen/demil/internal/task"
)

// SimConfig configures a simulated host.
type SimConfig struct {
	MaxModules          int
	MaxFrontFaceModules int
	MultipleBombs       bool
	MaxBombs            int
	Modules             []string
	Version             string
	HostVersion         string
	// RunFrames is how many frames a run lasts before the host returns to
	// setup. Zero keeps the host in gameplay until SetPhase is called.
	RunFrames int
	// CommitDelay is how long committing disablements takes.
	CommitDelay time.Duration
}

// Run is a run started on the simulated host.
type Run struct {
	MissionID string
	Seed      string
}

// Sim is an in-process Host. It is safe for concurrent use so tests can
// inspect it while a loop drives it.
type Sim struct {
	mu        sync.Mutex
	cfg       SimConfig
	phase     Phase
	runs      []Run
	frameLeft int
	refreshes int
	pending   []string
	disabled  []string
}

// NewSim creates a simulated host in the setup phase.
func NewSim(cfg SimConfig) *Sim {
	return &Sim{cfg: cfg, phase: PhaseSetup}
}

func (s *Sim) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase forces the phase.
func (s *Sim) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
	s.frameLeft = 0
}

func (s *Sim) BeginRun(missionID, seed string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSetup {
		return fault.Statef("cannot start a run while in %s", s.phase)
	}
	s.runs = append(s.runs, Run{MissionID: missionID, Seed: seed})
	s.phase = PhaseGameplay
	s.frameLeft = s.cfg.RunFrames
	return nil
}

// Frame advances the simulation by one host frame.
func (s *Sim) Frame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseGameplay || s.frameLeft <= 0 {
		return
	}
	s.frameLeft--
	if s.frameLeft == 0 {
		s.phase = PhaseSetup
	}
}

func (s *Sim) AvailableModules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cfg.Modules)
}

func (s *Sim) MaxModules() int          { return s.cfg.MaxModules }
func (s *Sim) MaxFrontFaceModules() int { return s.cfg.MaxFrontFaceModules }

func (s *Sim) MultipleBombs() (bool, int) {
	return s.cfg.MultipleBombs, s.cfg.MaxBombs
}

func (s *Sim) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
}

func (s *Sim) DisablePackage(steamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.pending, steamID) && !slices.Contains(s.disabled, steamID) {
		s.pending = append(s.pending, steamID)
	}
	return nil
}

// CommitDisablement moves pending disablements to disabled after
// CommitDelay, waiting off the update goroutine.
func (s *Sim) CommitDisablement() task.Sequence {
	delay := s.cfg.CommitDelay
	f := task.Go(func() (int, error) {
		time.Sleep(delay)
		s.mu.Lock()
		defer s.mu.Unlock()
		n := len(s.pending)
		s.disabled = append(s.disabled, s.pending...)
		s.pending = nil
		return n, nil
	})
	return task.New(func(yield func(task.Step) bool) {
		if !yield(task.Info("committing disabled packages")) {
			return
		}
		if !yield(task.Sub(f.Wait("commit"))) {
			return
		}
		n, _ := f.Result()
		yield(task.Done(n))
	})
}

func (s *Sim) Version() (model.VersionInfo, error) {
	if s.cfg.Version == "" {
		return model.VersionInfo{}, fault.Capabilityf("version information is unavailable")
	}
	return model.VersionInfo{Version: s.cfg.Version, HostVersion: s.cfg.HostVersion}, nil
}

// Runs returns the runs started so far.
func (s *Sim) Runs() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.runs)
}

// Refreshes returns how many times Refresh was called.
func (s *Sim) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// Disabled returns the committed disabled package ids.
func (s *Sim) Disabled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.disabled)
}

var _ Host = (*Sim)(nil)
