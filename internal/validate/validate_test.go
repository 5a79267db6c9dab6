package validate

import (
	"slices"
	"strings"
	"testing"

	"github.com/tepel-chen/demil/internal/fault"
	"github.com/tepel-chen/demil/internal/host"
	"github.com/tepel-chen/demil/internal/model"
)

func mission(frontFace bool, pools ...model.ComponentPool) model.Mission {
	return model.Mission{
		ID:        "mod_x",
		Generator: &model.GeneratorSetting{FrontFaceOnly: frontFace, ComponentPools: pools},
	}
}

func TestCheck(t *testing.T) {
	env := Env{Modules: []string{"ModA"}, MaxModules: 23, MaxFrontFaceModules: 11, MaxBombs: 2}

	tests := []struct {
		name    string
		m       model.Mission
		env     Env
		reason  string
		count   int
		missing []string
	}{
		{
			name:  "fits",
			m:     mission(false, model.ComponentPool{Count: 10, ComponentTypes: []model.ComponentType{"Wires"}}, model.ComponentPool{Count: 2, ModTypes: []string{"ModA"}}),
			env:   env,
			count: 12,
		},
		{
			name:   "too many modules",
			m:      mission(false, model.ComponentPool{Count: 47, ComponentTypes: []model.ComponentType{"Wires"}}),
			env:    env,
			reason: ReasonModules,
			count:  47,
		},
		{
			name:   "front face only",
			m:      mission(true, model.ComponentPool{Count: 12, ComponentTypes: []model.ComponentType{"Wires"}}),
			env:    env,
			reason: ReasonFrontFace,
			count:  12,
		},
		{
			name:  "front face limit ignored otherwise",
			m:     mission(false, model.ComponentPool{Count: 12, ComponentTypes: []model.ComponentType{"Wires"}}),
			env:   env,
			count: 12,
		},
		{
			name:    "missing modules before limits",
			m:       mission(false, model.ComponentPool{Count: 40, ModTypes: []string{"ModB", "ModA", "ModC"}}, model.ComponentPool{Count: 1, ModTypes: []string{"ModB"}}),
			env:     env,
			reason:  ReasonMissing,
			count:   41,
			missing: []string{"ModB", "ModC"},
		},
		{
			name: "bomb count with multiple bombs",
			m: mission(false,
				model.ComponentPool{Count: 2, ComponentTypes: []model.ComponentType{"Wires"}},
				model.ComponentPool{Count: 2, ModTypes: []string{"Multiple Bombs"}}),
			env:    Env{MaxModules: 23, MultipleBombs: true, MaxBombs: 2},
			reason: ReasonBombs,
			count:  3,
		},
		{
			name: "multiple bombs pools are not modules",
			m: mission(false,
				model.ComponentPool{Count: 20, ComponentTypes: []model.ComponentType{"Wires"}},
				model.ComponentPool{Count: 1, ModTypes: []string{"Multiple Bombs"}}),
			env:   Env{MaxModules: 23, MultipleBombs: true, MaxBombs: 2},
			count: 20,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Check(tt.m, tt.env)
			if r.Reason != tt.reason {
				t.Fatalf("Reason = %q, want %q", r.Reason, tt.reason)
			}
			if r.OK != (tt.reason == "") {
				t.Errorf("OK = %v", r.OK)
			}
			if r.Count != tt.count {
				t.Errorf("Count = %d, want %d", r.Count, tt.count)
			}
			if !slices.Equal(r.Missing, tt.missing) {
				t.Errorf("Missing = %v, want %v", r.Missing, tt.missing)
			}
			if r.OK && r.Err() != nil {
				t.Errorf("Err = %v for a passing report", r.Err())
			}
		})
	}
}

func TestReportErr(t *testing.T) {
	r := Check(mission(false, model.ComponentPool{Count: 47}), Env{MaxModules: 23})
	err := r.Err()
	if fault.KindOf(err) != fault.Capability {
		t.Errorf("kind = %s", fault.KindOf(err))
	}
	if msg := err.Error(); !strings.Contains(msg, "47") || !strings.Contains(msg, "23") {
		t.Errorf("message %q should name the count and the limit", msg)
	}
}

func TestEnvFrom(t *testing.T) {
	s := host.NewSim(host.SimConfig{Modules: []string{"a"}, MaxModules: 11, MaxFrontFaceModules: 5, MultipleBombs: true, MaxBombs: 4})
	env := EnvFrom(s)
	if env.MaxModules != 11 || env.MaxFrontFaceModules != 5 || !env.MultipleBombs || env.MaxBombs != 4 || len(env.Modules) != 1 {
		t.Errorf("EnvFrom = %+v", env)
	}
}
