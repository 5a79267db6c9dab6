package api

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/tepel-chen/demil/internal/conn"
	"github.com/tepel-chen/demil/internal/fault"
	"github.com/tepel-chen/demil/internal/host"
	"github.com/tepel-chen/demil/internal/model"
	"github.com/tepel-chen/demil/internal/pack"
	"github.com/tepel-chen/demil/internal/store"
	"github.com/tepel-chen/demil/internal/task"
	"github.com/tepel-chen/demil/internal/validate"
)

const (
	defaultSeed      = "-1"
	defaultPageLimit = 20
	maxPageLimit     = 100
	storeTimeout     = 5 * time.Second
)

// Commands builds the tasks behind every command route. Handlers run on the
// scheduler thread; database work is moved onto futures.
type Commands struct {
	repo    *pack.Repository
	host    host.Host
	store   store.Store
	port    int
	ignored []string
	logger  *slog.Logger
}

// CommandsConfig holds the collaborators of Commands.
type CommandsConfig struct {
	Repo  *pack.Repository
	Host  host.Host
	Store store.Store
	// Port is advertised in generated command URLs.
	Port int
	// Ignored steam ids are never disabled by saveAndDisable, in addition to
	// the ids stored in the ignore list.
	Ignored []string
	Logger  *slog.Logger
}

// NewCommands creates the command handlers.
func NewCommands(cfg CommandsConfig) *Commands {
	return &Commands{
		repo:    cfg.Repo,
		host:    cfg.Host,
		store:   cfg.Store,
		port:    cfg.Port,
		ignored: cfg.Ignored,
		logger:  cfg.Logger,
	}
}

// StartResponse is the result of startMission.
type StartResponse struct {
	MissionID string `json:"MissionID"`
	Seed      string `json:"Seed"`
}

// SaveResponse is the result of saveAndDisable.
type SaveResponse struct {
	SavedMissions []model.CatalogEntry `json:"SavedMissions"`
}

// DefaultResponse describes the service on the root path.
type DefaultResponse struct {
	Service string   `json:"Service"`
	Routes  []string `json:"Routes"`
}

// RequestDetail is one journaled request with its progress.
type RequestDetail struct {
	Request  *model.Request       `json:"Request"`
	Progress []model.ProgressLine `json:"Progress"`
}

// RequestPage is a page of the request journal.
type RequestPage struct {
	Requests []*model.Request `json:"Requests"`
	Total    int              `json:"Total"`
	Limit    int              `json:"Limit"`
	Offset   int              `json:"Offset"`
}

func (c *Commands) handleDefault(conn.Params) task.Sequence {
	return task.Value(DefaultResponse{Service: "DeMiL", Routes: RouteNames()})
}

func (c *Commands) handleNotFound(conn.Params) task.Sequence {
	return task.Error(fault.NotFoundf("Not found."))
}

func (c *Commands) handleLoad(p conn.Params) task.Sequence {
	steamID, ok := p.Lookup("steamId")
	if !ok {
		return task.Error(fault.Validationf("You must specify steamID"))
	}
	return task.New(func(yield func(task.Step) bool) {
		if !yield(task.Sub(c.loadPackage(steamID))) {
			return
		}
		pkg, ok := c.repo.Loaded(c.repo.Discover(steamID))
		if !ok {
			yield(task.Fail(fault.NotFoundf("Mod %s not found", steamID)))
			return
		}
		c.host.Refresh()
		yield(task.Done(pkg.CatalogEntry(c.port)))
	})
}

func (c *Commands) handleStart(p conn.Params) task.Sequence {
	steamID, hasSteamID := p.Lookup("steamId")
	missionID := p.Get("missionId")
	name := p.Get("missionName")
	seed, ok := p.Lookup("seed")
	if !ok {
		seed = defaultSeed
	}
	force := p.Bool("force")

	return task.New(func(yield func(task.Step) bool) {
		if hasSteamID {
			if !yield(task.Sub(c.loadPackage(steamID))) {
				return
			}
		}

		if phase := c.host.Phase(); phase != host.PhaseSetup {
			yield(task.Fail(fault.Statef("You must be in the setup state to start a mission.")))
			return
		}

		var ref pack.MissionRef
		switch {
		case missionID != "":
			var found bool
			if ref, found = c.repo.Mission(missionID); !found {
				yield(task.Fail(fault.NotFoundf("Mission not found: %s", missionID)))
				return
			}
		case name != "":
			var err error
			if ref, err = matchMission(name, c.repo.Missions()); err != nil {
				yield(task.Fail(err))
				return
			}
		default:
			yield(task.Fail(fault.Validationf("You must specify missionID or missionName")))
			return
		}

		if !force {
			report := validate.Check(ref.Mission, validate.EnvFrom(c.host))
			if !report.OK {
				c.logger.Info("mission cannot be started", "mission_id", ref.Mission.ID, "reason", report.Reason)
				yield(task.Fail(report.Err()))
				return
			}
		}

		if err := c.host.BeginRun(ref.Mission.ID, seed); err != nil {
			yield(task.Fail(err))
			return
		}
		c.logger.Info("mission started", "mission_id", ref.Mission.ID, "seed", seed, "forced", force)
		yield(task.Done(StartResponse{MissionID: ref.Mission.ID, Seed: seed}))
	})
}

func (c *Commands) handleDetail(grouped bool) func(conn.Params) task.Sequence {
	return func(p conn.Params) task.Sequence {
		steamID, ok := p.Lookup("steamId")
		if !ok {
			return task.Error(fault.Validationf("You must specify steamID"))
		}
		return task.New(func(yield func(task.Step) bool) {
			if !yield(task.Sub(c.loadPackage(steamID))) {
				return
			}
			pkg, ok := c.repo.Loaded(c.repo.Discover(steamID))
			if !ok {
				yield(task.Fail(fault.NotFoundf("Mod %s not found", steamID)))
				return
			}
			yield(task.Done(pkg.Data(c.port, grouped)))
		})
	}
}

func (c *Commands) handleList(conn.Params) task.Sequence {
	return task.New(func(yield func(task.Step) bool) {
		f := task.Go(func() ([]model.CatalogEntry, error) {
			return withStore(c.store.ListCatalog)
		})
		if !yield(task.Sub(f.Wait("catalog"))) {
			return
		}
		saved, _ := f.Result()
		yield(task.Done(model.MergeCatalog(c.withURLs(saved), c.loadedCatalog())))
	})
}

func (c *Commands) handleSaveAndDisable(conn.Params) task.Sequence {
	return task.New(func(yield func(task.Step) bool) {
		if phase := c.host.Phase(); phase != host.PhaseSetup {
			yield(task.Fail(fault.Statef("You must be in the setup state to disable missions.")))
			return
		}

		ignoredF := task.Go(func() ([]string, error) {
			return withStore(c.store.ListIgnored)
		})
		if !yield(task.Sub(ignoredF.Wait("ignore list"))) {
			return
		}
		ignored, _ := ignoredF.Result()
		ignored = append(ignored, c.ignored...)

		saved := []model.CatalogEntry{}
		for _, p := range c.repo.MissionPacks() {
			if slices.Contains(ignored, p.SteamID) {
				continue
			}
			if err := c.host.DisablePackage(p.SteamID); err != nil {
				yield(task.Fail(fault.Wrap(err, "disable "+p.SteamID)))
				return
			}
			saved = append(saved, p.CatalogEntry(c.port))
			if !yield(task.Info(map[string]string{"Disabled": p.SteamID})) {
				return
			}
		}

		if !yield(task.Sub(c.host.CommitDisablement())) {
			return
		}

		persist := task.Go(func() (struct{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			current, err := c.store.ListCatalog(ctx)
			if err != nil {
				return struct{}{}, fault.Wrap(err, "read catalog")
			}
			if err := c.store.ReplaceCatalog(ctx, model.MergeCatalog(current, saved)); err != nil {
				return struct{}{}, fault.Wrap(err, "save catalog")
			}
			return struct{}{}, nil
		})
		if !yield(task.Sub(persist.Wait("save catalog"))) {
			return
		}
		c.logger.Info("mission packs disabled", "count", len(saved))
		yield(task.Done(SaveResponse{SavedMissions: saved}))
	})
}

func (c *Commands) handleVersion(conn.Params) task.Sequence {
	return task.Func(onceStep(func() task.Step {
		v, err := c.host.Version()
		if err != nil {
			return task.Fail(err)
		}
		return task.Done(v)
	}))
}

func (c *Commands) handleRequests(p conn.Params) task.Sequence {
	if id, ok := p.Lookup("id"); ok {
		return c.requestDetail(id)
	}
	limit, err := intParam(p, "limit", defaultPageLimit)
	if err != nil {
		return task.Error(err)
	}
	offset, err := intParam(p, "offset", 0)
	if err != nil {
		return task.Error(err)
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	return task.New(func(yield func(task.Step) bool) {
		f := task.Go(func() (RequestPage, error) {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			reqs, total, err := c.store.ListRequests(ctx, limit, offset)
			if err != nil {
				return RequestPage{}, fault.Wrap(err, "list requests")
			}
			return RequestPage{Requests: reqs, Total: total, Limit: limit, Offset: offset}, nil
		})
		if !yield(task.Sub(f.Wait("requests"))) {
			return
		}
		page, _ := f.Result()
		yield(task.Done(page))
	})
}

func (c *Commands) requestDetail(id string) task.Sequence {
	return task.New(func(yield func(task.Step) bool) {
		f := task.Go(func() (RequestDetail, error) {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			r, err := c.store.GetRequest(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return RequestDetail{}, fault.NotFoundf("Request %s not found", id)
			}
			if err != nil {
				return RequestDetail{}, fault.Wrap(err, "get request")
			}
			lines, err := c.store.GetProgressLines(ctx, id)
			if err != nil {
				return RequestDetail{}, fault.Wrap(err, "get progress lines")
			}
			return RequestDetail{Request: r, Progress: lines}, nil
		})
		if !yield(task.Sub(f.Wait("request " + id))) {
			return
		}
		d, _ := f.Result()
		yield(task.Done(d))
	})
}

func (c *Commands) handleStats(conn.Params) task.Sequence {
	return task.New(func(yield func(task.Step) bool) {
		f := task.Go(func() (*model.RequestStats, error) {
			return withStore(c.store.GetRequestStats)
		})
		if !yield(task.Sub(f.Wait("stats"))) {
			return
		}
		stats, _ := f.Result()
		yield(task.Done(stats))
	})
}

// loadedCatalog describes the loaded mission packs.
func (c *Commands) loadedCatalog() []model.CatalogEntry {
	var out []model.CatalogEntry
	for _, p := range c.repo.MissionPacks() {
		out = append(out, p.CatalogEntry(c.port))
	}
	return out
}

// withURLs fills in the command URLs of stored entries.
func (c *Commands) withURLs(entries []model.CatalogEntry) []model.CatalogEntry {
	out := make([]model.CatalogEntry, len(entries))
	for i, e := range entries {
		out[i] = model.NewCatalogEntry(e.SteamID, e.ModID, e.Title, c.port)
	}
	return out
}

// withStore runs a store read with a bounded context.
func withStore[T any](fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	v, err := fn(ctx)
	if err != nil {
		return v, fault.Wrap(err, "store")
	}
	return v, nil
}

// onceStep yields the step built by fn once, evaluating fn on first advance.
func onceStep(fn func() task.Step) func() (task.Step, bool) {
	called := false
	return func() (task.Step, bool) {
		if called {
			return task.Step{}, false
		}
		called = true
		return fn(), true
	}
}

func intParam(p conn.Params, key string, def int) (int, error) {
	v, ok := p.Lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fault.Validationf("%s must be a number, got %q", key, v)
	}
	return n, nil
}
