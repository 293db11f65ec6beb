package systems

import (
	"runtime"

	"github.com/spaghettifunk/anima-merge/engine/assets"
)

type SystemManagerConfig struct {
	/** @brief Number of merge workers. Defaults to the number of CPUs. */
	Workers int
	/** @brief Jobs queued before Submit blocks. */
	QueueSize int
	/** @brief The maximum number of materials registered at once. */
	MaxMaterialCount uint32
	/** @brief The number of finished merges kept in the merge history. */
	HistorySize int
	/** @brief Overrides the bone limit of every recipe when > 0. */
	MaxBonesPerChunk int
}

type SystemManager struct {
	JobSystem      *JobSystem
	MaterialSystem *MaterialSystem
	MergeSystem    *MergeSystem
}

func NewSystemManager(config SystemManagerConfig, am *assets.AssetManager) (*SystemManager, error) {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers * 4
	}
	if config.MaxMaterialCount == 0 {
		config.MaxMaterialCount = 4096
	}

	js, err := NewJobSystem(config.Workers, config.QueueSize)
	if err != nil {
		return nil, err
	}
	ms, err := NewMaterialSystem(&MaterialSystemConfig{
		MaxMaterialCount: config.MaxMaterialCount,
	})
	if err != nil {
		_ = js.Shutdown()
		return nil, err
	}
	mgs, err := NewMergeSystem(MergeSystemConfig{
		HistorySize:      config.HistorySize,
		MaxBonesPerChunk: config.MaxBonesPerChunk,
	}, am, ms, js)
	if err != nil {
		_ = js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		JobSystem:      js,
		MaterialSystem: ms,
		MergeSystem:    mgs,
	}, nil
}

// Shutdown stops the systems in reverse creation order. The job system
// drains its queue first, so in flight merges finish.
func (sm *SystemManager) Shutdown() error {
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.MergeSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.MaterialSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
