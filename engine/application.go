package engine

import "time"

type ApplicationConfig struct {
	// The application name used in logs.
	Name string
	// Recipe files merged on start. In watch mode they are merged again
	// whenever they or one of their sources change.
	Recipes []string
	// Keep running and watch the recipes and their sources.
	Watch bool
	// Number of merge workers, 0 means one per CPU.
	Workers int
	// Log level name. Empty means the first recipe that sets log_level
	// decides, falling back to info.
	LogLevel string
	// Overrides max_bones_per_chunk of every recipe when > 0.
	MaxBonesPerChunk int
	// Extra directories indexed and watched next to the recipe and
	// source directories.
	AssetDirs []string
	// Changes arriving closer together than this are merged once.
	// Defaults to 250ms.
	Debounce time.Duration
	// The number of finished merges kept in the history.
	HistorySize int
}
