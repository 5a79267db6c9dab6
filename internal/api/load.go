package api

import (
	"regexp"

	"github.com/tepel-chen/demil/internal/fault"
	"github.com/tepel-chen/demil/internal/pack"
	"github.com/tepel-chen/demil/internal/task"
)

var steamIDPattern = regexp.MustCompile(`^\d+$`)

// LoadProgress is reported at each step of loading a package.
type LoadProgress struct {
	SteamID string `json:"SteamID"`
	Stage   string `json:"Stage"`
	Bundle  string `json:"Bundle,omitempty"`
}

// Load stages.
const (
	StageLocate   = "locate"
	StageCached   = "cached"
	StageManifest = "manifest"
	StageBundle   = "bundle"
	StageLoaded   = "loaded"
)

type manifestResult struct {
	manifest pack.Manifest
	bundles  []string
}

// loadPackage returns a task that loads the package with the given steam id,
// or reuses it when it is already loaded, ending with the *pack.Package.
func (c *Commands) loadPackage(steamID string) task.Sequence {
	return task.New(func(yield func(task.Step) bool) {
		if !steamIDPattern.MatchString(steamID) {
			yield(task.Fail(fault.Validationf("SteamID must be numbers")))
			return
		}

		c.logger.Info("loading package", "steam_id", steamID)
		path := c.repo.Discover(steamID)
		if !yield(task.Info(LoadProgress{SteamID: steamID, Stage: StageLocate})) {
			return
		}
		exists := task.Go(func() (bool, error) { return c.repo.Exists(path), nil })
		if !yield(task.Sub(exists.Wait("locate " + steamID))) {
			return
		}
		if ok, _ := exists.Result(); !ok {
			yield(task.Fail(fault.NotFoundf("Mod with steamID %s not found", steamID)))
			return
		}

		if p, ok := c.repo.Loaded(path); ok {
			c.logger.Info("package already loaded", "steam_id", steamID)
			if !yield(task.Info(LoadProgress{SteamID: steamID, Stage: StageCached})) {
				return
			}
			yield(task.Done(p))
			return
		}

		read := task.Go(func() (manifestResult, error) {
			m, err := c.repo.LoadManifest(path)
			if err != nil {
				c.logger.Warn("invalid manifest", "steam_id", steamID, "error", err)
				return manifestResult{}, fault.Validationf("Skipping \"%s\": No valid modInfo.json", steamID)
			}
			bundles, err := c.repo.BundlePaths(path)
			if err != nil {
				return manifestResult{}, fault.Wrap(err, "list bundles of "+steamID)
			}
			return manifestResult{manifest: m, bundles: bundles}, nil
		})
		if !yield(task.Info(LoadProgress{SteamID: steamID, Stage: StageManifest})) {
			return
		}
		if !yield(task.Sub(read.Wait("manifest " + steamID))) {
			return
		}
		res, _ := read.Result()

		p := &pack.Package{SteamID: steamID, Path: path, Manifest: res.manifest}
		for _, file := range res.bundles {
			if !yield(task.Info(LoadProgress{SteamID: steamID, Stage: StageBundle, Bundle: file})) {
				return
			}
			f := c.repo.LoadPayload(file)
			if !yield(task.Sub(f.Wait("bundle " + file))) {
				return
			}
			b, err := f.Result()
			if err != nil {
				yield(task.Fail(fault.NotFoundf("\"%s\" has no readable bundle %s", steamID, file)))
				return
			}
			if err := p.LoadBundle(b); err != nil {
				c.logger.Error("load bundle failed", "steam_id", steamID, "mod_id", p.ModID(), "error", err)
			}
			c.repo.UnloadPayload(b)
		}
		c.repo.Register(p)

		if !yield(task.Info(LoadProgress{SteamID: steamID, Stage: StageLoaded})) {
			return
		}
		yield(task.Done(p))
	})
}
