package systems

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-merge/engine/assets"
	"github.com/spaghettifunk/anima-merge/engine/assets/loaders"
	"github.com/spaghettifunk/anima-merge/engine/containers"
	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/merge"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
	"github.com/spaghettifunk/anima-merge/engine/resources"
)

type MergeSystemConfig struct {
	/** @brief The number of finished merges kept for History. */
	HistorySize int
	/** @brief Overrides max_bones_per_chunk of every recipe when > 0. */
	MaxBonesPerChunk int
}

// MergeResult describes one finished merge, successful or not.
type MergeResult struct {
	ID         uuid.UUID
	RecipeName string
	RecipePath string
	OutputPath string
	// Mesh is the merged mesh. Nil when the merge failed.
	Mesh       *mesh.SkeletalMesh
	Warnings   []merge.Warning
	Elapsed    time.Duration
	FinishedAt time.Time
	Err        error
}

// MergeSystem runs merge recipes: it loads the source meshes, merges them
// and writes the result. Recipes may run concurrently on the job system.
type MergeSystem struct {
	config    MergeSystemConfig
	assets    *assets.AssetManager
	materials *MaterialSystem
	jobs      *JobSystem

	mutex   sync.Mutex
	history *containers.RingQueue[MergeResult]
}

func NewMergeSystem(config MergeSystemConfig, am *assets.AssetManager, ms *MaterialSystem, js *JobSystem) (*MergeSystem, error) {
	if am == nil || ms == nil || js == nil {
		return nil, fmt.Errorf("func NewMergeSystem - asset manager, material system and job system are required")
	}
	if config.HistorySize <= 0 {
		config.HistorySize = 32
	}
	return &MergeSystem{
		config:    config,
		assets:    am,
		materials: ms,
		jobs:      js,
		history:   containers.NewRingQueue[MergeResult](config.HistorySize),
	}, nil
}

// MergeFile loads the recipe at path and runs it.
func (s *MergeSystem) MergeFile(path string) (*MergeResult, error) {
	recipe, err := s.LoadRecipe(path)
	if err != nil {
		result := &MergeResult{ID: uuid.New(), RecipePath: path, Err: err, FinishedAt: time.Now()}
		s.fail(result)
		return result, err
	}
	return s.Merge(recipe)
}

// LoadRecipe loads and validates the recipe at path.
func (s *MergeSystem) LoadRecipe(path string) (*resources.MergeRecipe, error) {
	res, err := s.assets.LoadAsset(path, resources.ResourceTypeMergeRecipe, nil)
	if err != nil {
		return nil, err
	}
	recipe, ok := res.Data.(*resources.MergeRecipe)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, core.ErrInvalidResource)
	}
	return recipe, nil
}

// Merge runs one recipe synchronously and writes the merged mesh to the
// recipe output. The returned result is also recorded in the history.
func (s *MergeSystem) Merge(recipe *resources.MergeRecipe) (*MergeResult, error) {
	clock := core.NewClock()
	clock.Start()

	result := &MergeResult{
		ID:         uuid.New(),
		RecipeName: recipe.Name,
		RecipePath: recipe.Path,
		OutputPath: recipe.Output,
	}

	sources, release, err := s.loadSources(recipe)
	defer release()
	if err != nil {
		return s.finish(result, clock, err)
	}

	var forced []merge.SectionMapping
	for _, f := range recipe.ForcedSectionMapping {
		forced = append(forced, merge.SectionMapping{SectionIDs: f.SectionIDs})
	}
	maxBones := recipe.MaxBonesPerChunk
	if s.config.MaxBonesPerChunk > 0 {
		maxBones = s.config.MaxBonesPerChunk
	}

	dst := mesh.NewSkeletalMesh(recipe.Name)
	merger := merge.NewMeshMerger(dst, sources, forced, recipe.StripTopLODs,
		merge.WithMaxBonesPerChunk(maxBones),
		merge.WithFullPrecisionUVs(recipe.UseFullPrecisionUVs()),
	)
	err = merger.Merge()
	result.Warnings = merger.Warnings()
	if err != nil {
		return s.finish(result, clock, fmt.Errorf("recipe '%s': %w", recipe.Name, err))
	}

	if err := loaders.SaveSkeletalMesh(recipe.Output, dst); err != nil {
		return s.finish(result, clock, fmt.Errorf("recipe '%s': writing '%s': %w", recipe.Name, recipe.Output, err))
	}
	result.Mesh = dst
	return s.finish(result, clock, nil)
}

// loadSources loads every source mesh of recipe. Empty paths stay nil. The
// returned release function gives back the materials the sources acquired.
func (s *MergeSystem) loadSources(recipe *resources.MergeRecipe) ([]*mesh.SkeletalMesh, func(), error) {
	sources := make([]*mesh.SkeletalMesh, len(recipe.Sources))
	var loaded []*resources.Resource
	release := func() {
		for _, res := range loaded {
			if m, ok := res.Data.(*mesh.SkeletalMesh); ok {
				for _, mat := range m.Materials {
					if mat != nil {
						s.materials.Release(mat.Name)
					}
				}
			}
			if err := s.assets.UnloadAsset(res); err != nil {
				core.LogError(err.Error())
			}
		}
	}

	params := loaders.SkeletalMeshParams{Materials: s.materials.Resolver()}
	for i, path := range recipe.Sources {
		if path == "" {
			continue
		}
		res, err := s.assets.LoadAsset(path, resources.ResourceTypeSkeletalMesh, params)
		if err != nil {
			return nil, release, fmt.Errorf("recipe '%s' source %d: %w", recipe.Name, i, err)
		}
		loaded = append(loaded, res)
		m, ok := res.Data.(*mesh.SkeletalMesh)
		if !ok {
			return nil, release, fmt.Errorf("recipe '%s' source %d '%s': %w", recipe.Name, i, path, core.ErrInvalidResource)
		}
		sources[i] = m
	}
	return sources, release, nil
}

func (s *MergeSystem) finish(result *MergeResult, clock *core.Clock, err error) (*MergeResult, error) {
	clock.Update()
	result.Elapsed = clock.Elapsed()
	result.FinishedAt = time.Now()
	result.Err = err
	if err != nil {
		s.fail(result)
		return result, err
	}

	core.MetricsRecordMerge(result.Elapsed, true)
	s.record(result)
	core.LogInfo("recipe '%s' merged into '%s' in %s with %d warnings", result.RecipeName, result.OutputPath, result.Elapsed, len(result.Warnings))

	ctx := core.EventContext{}
	ctx.Data.C[0] = result.RecipeName
	ctx.Data.C[1] = result.OutputPath
	ctx.Data.F64[0] = float64(result.Elapsed.Microseconds()) / 1000.0
	ctx.Data.U32[0] = uint32(len(result.Mesh.LODModels))
	ctx.Data.U32[1] = uint32(result.Mesh.RefSkeleton.Num())
	core.EventFire(core.EVENT_CODE_MESH_MERGED, s, ctx)
	return result, nil
}

func (s *MergeSystem) fail(result *MergeResult) {
	core.MetricsRecordMerge(result.Elapsed, false)
	s.record(result)
	core.LogError("%s", result.Err.Error())

	ctx := core.EventContext{}
	ctx.Data.C[0] = result.RecipeName
	ctx.Data.C[1] = result.Err.Error()
	core.EventFire(core.EVENT_CODE_MERGE_FAILED, s, ctx)
}

func (s *MergeSystem) record(result *MergeResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.history.Push(*result)
}

// Submit queues the recipe at path on the job system. done, when set, is
// called with the result from a worker goroutine, even when the job panics.
func (s *MergeSystem) Submit(path string, done func(*MergeResult, error)) error {
	var result *MergeResult
	var err error
	return s.jobs.Submit(JobTask{
		Name:        path,
		InputParams: path,
		OnStart: func(params interface{}) (interface{}, error) {
			result, err = s.MergeFile(params.(string))
			return result, err
		},
		OnFailure: func(jobErr error) {
			if result == nil {
				result = &MergeResult{ID: uuid.New(), RecipePath: path, Err: jobErr, FinishedAt: time.Now()}
				err = jobErr
			}
		},
		OnCompletionCallback: func() {
			if done != nil {
				done(result, err)
			}
		},
	})
}

// MergeBatch runs every recipe on the job system and waits for all of them.
// Results keep the order of paths. The error joins every failed recipe.
func (s *MergeSystem) MergeBatch(paths []string) ([]*MergeResult, error) {
	results := make([]*MergeResult, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		err := s.Submit(path, func(result *MergeResult, err error) {
			defer wg.Done()
			results[i] = result
			errs[i] = err
		})
		if err != nil {
			wg.Done()
			errs[i] = err
			results[i] = &MergeResult{ID: uuid.New(), RecipePath: path, Err: err, FinishedAt: time.Now()}
		}
	}
	wg.Wait()
	return results, errors.Join(errs...)
}

// History returns the most recent merges, oldest first.
func (s *MergeSystem) History() []MergeResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.history.Items()
}

func (s *MergeSystem) Shutdown() error {
	return nil
}
