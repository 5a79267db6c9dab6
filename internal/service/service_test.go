package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tepel-chen/demil/internal/config"
	"github.com/tepel-chen/demil/internal/host"
	"github.com/tepel-chen/demil/internal/model"
	"github.com/tepel-chen/demil/internal/pack"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.DBPath = ":memory:"
	cfg.WorkshopDir = t.TempDir()
	cfg.TickInterval = time.Millisecond
	return cfg
}

func writePack(t *testing.T, dir, steamID, title string) {
	t.Helper()
	payload := pack.Payload{Missions: []model.Mission{{
		ID:          steamID + "-m1",
		DisplayName: title + " Mission",
		Generator: &model.GeneratorSetting{
			TimeLimit:      120,
			NumStrikes:     3,
			ComponentPools: []model.ComponentPool{{Count: 2, ComponentTypes: []model.ComponentType{"Wires"}}},
		},
	}}}
	if _, err := pack.WriteFixture(dir, steamID, pack.Manifest{ID: "pack" + steamID, Title: title}, payload); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
}

// startService runs svc until the test ends and returns the base URL of its
// HTTP front.
func startService(t *testing.T, svc *Service) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})
	return ts.URL
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestServiceServesCommands(t *testing.T) {
	cfg := testConfig(t)
	cfg.Host.RunFrames = 0
	writePack(t, cfg.WorkshopDir, "100", "Pack A")

	svc, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base := startService(t, svc)

	resp, err := http.Get(base + "/startMission?steamID=100&missionID=100-m1&seed=42")
	if err != nil {
		t.Fatalf("GET /startMission: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["MissionID"] != "100-m1" || body["Seed"] != "42" || body["Version"] != cfg.Host.Version {
		t.Errorf("body = %v", body)
	}
	if svc.Host().Phase() != host.PhaseGameplay {
		t.Errorf("phase = %s, want gameplay", svc.Host().Phase())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var reqs []*model.Request
	for {
		if err := svc.Journal().Flush(ctx); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		var err error
		reqs, _, err = svc.Store().ListRequests(ctx, 10, 0)
		if err != nil {
			t.Fatalf("ListRequests: %v", err)
		}
		if len(reqs) == 1 && model.IsTerminal(reqs[0].Status) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if reqs[0].Status != model.StatusCompleted || reqs[0].Route != "startMission" {
		t.Errorf("journal = %+v", reqs[0])
	}

	lines, err := svc.Store().GetProgressLines(ctx, reqs[0].ID)
	if err != nil {
		t.Fatalf("GetProgressLines: %v", err)
	}
	if len(lines) == 0 {
		t.Error("no progress recorded for the load")
	}
}

func TestServiceSeedsIgnoreList(t *testing.T) {
	cfg := testConfig(t)
	cfg.IgnoredSteamIDs = []string{"300", "100"}

	svc, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	ids, err := svc.Store().ListIgnored(context.Background())
	if err != nil {
		t.Fatalf("ListIgnored: %v", err)
	}
	if len(ids) != 2 || ids[0] != "100" || ids[1] != "300" {
		t.Errorf("ignored = %v, want [100 300]", ids)
	}
}

func TestServiceStartsInConfiguredPhase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Host.Phase = string(host.PhaseGameplay)

	svc, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	if svc.Host().Phase() != host.PhaseGameplay {
		t.Errorf("phase = %s, want gameplay", svc.Host().Phase())
	}
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	svc, err := New(testConfig(t), discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
