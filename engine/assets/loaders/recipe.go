package loaders

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/resources"
)

type RecipeLoader struct{}

func (rl *RecipeLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	if assetType != resources.ResourceTypeMergeRecipe {
		return nil, fmt.Errorf("recipe loader cannot load %s resources: %w", assetType, core.ErrUnknownResourceType)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	recipe, err := ParseRecipe(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	recipe.Path = path
	resolveRecipePaths(recipe, filepath.Dir(path))

	return &resources.Resource{
		Type:     resources.ResourceTypeMergeRecipe,
		Name:     recipe.Name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     recipe,
	}, nil
}

func (rl *RecipeLoader) Unload(res *resources.Resource) error {
	if res != nil {
		res.Data = nil
	}
	return nil
}

// ParseRecipe decodes and validates a TOML merge recipe. Unknown keys are
// an error so typos do not silently fall back to defaults.
func ParseRecipe(data []byte) (*resources.MergeRecipe, error) {
	recipe := &resources.MergeRecipe{}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(recipe); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidResource, strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("%w: line %d column %d: %v", core.ErrInvalidResource, row, col, decodeErr)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidResource, err)
	}
	if err := validateRecipe(recipe); err != nil {
		return nil, err
	}
	return recipe, nil
}

func validateRecipe(recipe *resources.MergeRecipe) error {
	if recipe.Name == "" {
		return fmt.Errorf("%w: recipe name is required", core.ErrInvalidResource)
	}
	if recipe.Output == "" {
		return fmt.Errorf("%w: recipe '%s' has no output path", core.ErrInvalidResource, recipe.Name)
	}
	if len(recipe.Sources) == 0 {
		return fmt.Errorf("%w: recipe '%s' has no sources", core.ErrInvalidResource, recipe.Name)
	}
	empty := 0
	for _, s := range recipe.Sources {
		if strings.TrimSpace(s) == "" {
			empty++
		}
	}
	if empty == len(recipe.Sources) {
		return fmt.Errorf("%w: recipe '%s' has only empty sources", core.ErrInvalidResource, recipe.Name)
	}
	if recipe.StripTopLODs < 0 {
		return fmt.Errorf("%w: recipe '%s' strip_top_lods must not be negative", core.ErrInvalidResource, recipe.Name)
	}
	if recipe.MaxBonesPerChunk < 0 {
		return fmt.Errorf("%w: recipe '%s' max_bones_per_chunk must not be negative", core.ErrInvalidResource, recipe.Name)
	}
	if recipe.LogLevel != "" {
		if _, err := core.ParseLogLevel(recipe.LogLevel); err != nil {
			return fmt.Errorf("%w: recipe '%s': %v", core.ErrInvalidResource, recipe.Name, err)
		}
	}
	if n := len(recipe.ForcedSectionMapping); n > 0 && n != len(recipe.Sources) {
		core.LogWarn("recipe '%s' has %d forced section mappings for %d sources, they will be ignored", recipe.Name, n, len(recipe.Sources))
	}
	return nil
}

// resolveRecipePaths makes relative source and output paths relative to
// dir. Empty sources stay empty.
func resolveRecipePaths(recipe *resources.MergeRecipe, dir string) {
	for i, s := range recipe.Sources {
		s = strings.TrimSpace(s)
		if s != "" && !filepath.IsAbs(s) {
			s = filepath.Join(dir, s)
		}
		recipe.Sources[i] = s
	}
	if !filepath.IsAbs(recipe.Output) {
		recipe.Output = filepath.Join(dir, recipe.Output)
	}
}
