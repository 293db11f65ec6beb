package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-merge/engine/assets"
	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/resources"
	"github.com/spaghettifunk/anima-merge/engine/systems"
	"golang.org/x/exp/slices"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine has shut down
	EngineStageShutdown
)

const defaultDebounce = 250 * time.Millisecond

type Engine struct {
	config        *ApplicationConfig
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	clock         *core.Clock

	mutex        sync.Mutex
	currentStage Stage

	quit     chan struct{}
	quitOnce sync.Once

	// Recipes by absolute path and watched directories, only touched by
	// Initialize and the Run goroutine.
	recipes map[string]*resources.MergeRecipe
	watched map[string]struct{}
}

func New(config *ApplicationConfig) (*Engine, error) {
	if config == nil {
		return nil, fmt.Errorf("func New - application config is required")
	}
	if len(config.Recipes) == 0 {
		return nil, fmt.Errorf("func New - at least one recipe is required")
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	sm, err := systems.NewSystemManager(systems.SystemManagerConfig{
		Workers:          config.Workers,
		HistorySize:      config.HistorySize,
		MaxBonesPerChunk: config.MaxBonesPerChunk,
	}, am)
	if err != nil {
		core.LogError(err.Error())
		_ = am.Close()
		return nil, err
	}

	return &Engine{
		config:        config,
		assetManager:  am,
		systemManager: sm,
		clock:         core.NewClock(),
		currentStage:  EngineStageUninitialized,
		quit:          make(chan struct{}),
		recipes:       make(map[string]*resources.MergeRecipe),
		watched:       make(map[string]struct{}),
	}, nil
}

func (e *Engine) Initialize() error {
	e.setStage(EngineStageInitializing)

	// initialize events
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)

	for _, path := range e.config.Recipes {
		if err := e.indexRecipe(path); err != nil {
			// Reported again by the first merge, watch mode may recover.
			core.LogError(err.Error())
		}
	}

	level, err := core.ParseLogLevel(e.logLevel())
	if err != nil {
		return err
	}
	core.SetLogLevel(level)

	if err := e.assetManager.Initialize(e.config.AssetDirs...); err != nil {
		return err
	}
	if e.config.Watch {
		for _, dir := range e.watchDirs() {
			e.watchDir(dir)
		}
	}

	e.setStage(EngineStageInitialized)
	core.LogDebug("%s initialized with %d recipes and %d workers", e.config.Name, len(e.config.Recipes), e.systemManager.JobSystem.NumWorkers())
	return nil
}

// logLevel returns the configured level, or the first one set by a recipe.
func (e *Engine) logLevel() string {
	if e.config.LogLevel != "" {
		return e.config.LogLevel
	}
	for _, path := range e.config.Recipes {
		if r, ok := e.recipes[absPath(path)]; ok && r.LogLevel != "" {
			return r.LogLevel
		}
	}
	return ""
}

// Run merges every recipe once. In watch mode it then keeps merging the
// recipes affected by file changes until ctx is done or the application
// quit event fires.
func (e *Engine) Run(ctx context.Context) error {
	e.setStage(EngineStageRunning)
	e.clock.Start()

	_, err := e.systemManager.MergeSystem.MergeBatch(e.config.Recipes)
	e.clock.Update()
	succeeded, failed := core.MetricsMergeCounts()
	core.LogInfo("merged %d recipes in %s, %d failed, average %.2fms", succeeded, e.clock.Elapsed(), failed, core.MetricsMergeTime())

	if !e.config.Watch {
		return err
	}

	core.LogInfo("watching %d recipes for changes", len(e.recipes))
	debounce := e.config.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time
	changes := e.assetManager.Changes()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.quit:
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			affected := e.affectedRecipes(change)
			if len(affected) == 0 {
				continue
			}
			for _, r := range affected {
				pending[r] = struct{}{}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			e.remerge(pending)
			clear(pending)
		}
	}
}

// affectedRecipes returns the recipes to merge again after change. A recipe
// is never merged again because its own output changed.
func (e *Engine) affectedRecipes(change assets.AssetChange) []string {
	path := filepath.Clean(change.Path)
	if change.Removed {
		core.LogWarn("'%s' was removed", path)
		return nil
	}
	if _, ok := e.recipes[path]; ok {
		if err := e.indexRecipe(path); err != nil {
			core.LogError(err.Error())
			return nil
		}
		if e.config.Watch {
			for _, src := range e.recipes[path].Sources {
				if src != "" {
					e.watchDir(filepath.Dir(src))
				}
			}
		}
		return []string{path}
	}
	if change.Type != resources.ResourceTypeSkeletalMesh {
		return nil
	}

	var affected []string
	for recipePath, r := range e.recipes {
		if filepath.Clean(r.Output) == path {
			continue
		}
		if slices.ContainsFunc(r.Sources, func(s string) bool { return s != "" && filepath.Clean(s) == path }) {
			affected = append(affected, recipePath)
		}
	}
	slices.Sort(affected)
	return affected
}

func (e *Engine) remerge(pending map[string]struct{}) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		core.LogInfo("merging '%s' again", p)
		if err := e.systemManager.MergeSystem.Submit(p, nil); err != nil {
			core.LogError(err.Error())
		}
	}
}

// indexRecipe loads the recipe at path and records it for watch mode.
func (e *Engine) indexRecipe(path string) error {
	recipe, err := e.systemManager.MergeSystem.LoadRecipe(path)
	if err != nil {
		return err
	}
	e.recipes[absPath(path)] = recipe
	return nil
}

// watchDirs returns the directories holding recipes and their sources.
func (e *Engine) watchDirs() []string {
	var dirs []string
	for _, path := range e.config.Recipes {
		dirs = append(dirs, filepath.Dir(absPath(path)))
	}
	for _, r := range e.recipes {
		for _, s := range r.Sources {
			if s != "" {
				dirs = append(dirs, filepath.Dir(s))
			}
		}
	}
	slices.Sort(dirs)
	return slices.Compact(dirs)
}

// watchDir adds dir to the watcher unless it is already watched.
func (e *Engine) watchDir(dir string) {
	if _, ok := e.watched[dir]; ok {
		return
	}
	if err := e.assetManager.Watch(dir); err != nil {
		core.LogWarn("cannot watch '%s': %s", dir, err.Error())
		return
	}
	e.watched[dir] = struct{}{}
	core.LogDebug("watching '%s'", dir)
}

// Stop makes Run return. Safe to call more than once and from any goroutine.
func (e *Engine) Stop() {
	e.quitOnce.Do(func() {
		close(e.quit)
	})
}

func (e *Engine) Shutdown() error {
	e.setStage(EngineStageShuttingDown)
	e.Stop()
	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)

	var errs []error
	if err := e.systemManager.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := e.assetManager.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := core.EventSystemShutdown(); err != nil {
		errs = append(errs, err)
	}
	e.setStage(EngineStageShutdown)
	return errors.Join(errs...)
}

// History returns the most recent merge results, oldest first.
func (e *Engine) History() []systems.MergeResult {
	return e.systemManager.MergeSystem.History()
}

func (e *Engine) Stage() Stage {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.currentStage
}

func (e *Engine) setStage(stage Stage) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.currentStage = stage
}

func (e *Engine) onEvent(code core.SystemEventCode, sender, listenerInst interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down")
		e.Stop()
	}
	return false
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
