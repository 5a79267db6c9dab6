// testserver starts the command service against a generated workshop and an
// in-memory database, for trying the commands by hand.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tepel-chen/demil/internal/config"
	"github.com/tepel-chen/demil/internal/model"
	"github.com/tepel-chen/demil/internal/pack"
	"github.com/tepel-chen/demil/internal/service"
)

func generator(count int, types ...model.ComponentType) *model.GeneratorSetting {
	return &model.GeneratorSetting{
		TimeLimit:      300,
		NumStrikes:     3,
		ComponentPools: []model.ComponentPool{{Count: count, ComponentTypes: types}},
	}
}

// writeWorkshop installs a few packages: two mission packs and a module pack
// whose mission needs more modules than the host supports.
func writeWorkshop(dir string) error {
	packs := []struct {
		steamID  string
		manifest pack.Manifest
		payload  pack.Payload
	}{
		{
			steamID:  "1001",
			manifest: pack.Manifest{ID: "classics", Title: "Classic Missions"},
			payload: pack.Payload{
				Missions: []model.Mission{
					{ID: "warmup", DisplayName: "Warm Up", Generator: generator(3, "Wires", "Keypad")},
					{ID: "centurion", DisplayName: "The Centurion", Generator: generator(11, "Wires", "Memory", "Maze")},
				},
				ToCs: []model.TableOfContents{{
					DisplayName: "Classics",
					Sections: []model.Section{
						{Title: "Starters", SectionNum: 1, MissionIDs: []string{"warmup"}},
						{Title: "Challenges", SectionNum: 2, MissionIDs: []string{"centurion"}},
					},
				}},
			},
		},
		{
			steamID:  "1002",
			manifest: pack.Manifest{ID: "speedruns", Title: "Speedruns"},
			payload: pack.Payload{
				Missions: []model.Mission{
					{ID: "blitz", DisplayName: "Blitz", Generator: generator(5, "Simon", "Password")},
				},
			},
		},
		{
			steamID:  "1003",
			manifest: pack.Manifest{ID: "bigmods", Title: "Big Modules"},
			payload: pack.Payload{
				Missions:    []model.Mission{{ID: "marathon", DisplayName: "Marathon", Generator: generator(47, "Wires")}},
				BombModules: []string{"bigModule"},
			},
		},
	}
	for _, p := range packs {
		if _, err := pack.WriteFixture(dir, p.steamID, p.manifest, p.payload); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	workshop, err := os.MkdirTemp("", "demil-workshop-")
	if err != nil {
		log.Fatalf("create workshop: %v", err)
	}
	defer os.RemoveAll(workshop)
	if err := writeWorkshop(workshop); err != nil {
		log.Fatalf("write workshop: %v", err)
	}

	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.WorkshopDir = workshop
	cfg.Host.CommitDelay = 500 * time.Millisecond
	if v := os.Getenv("DEMIL_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc, err := service.New(cfg, logger)
	if err != nil {
		log.Fatalf("build service: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("testserver: starting", "addr", cfg.ListenAddr, "workshop", workshop)
	if err := svc.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
