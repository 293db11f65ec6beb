package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-merge/engine/assets"
	"github.com/spaghettifunk/anima-merge/engine/assets/loaders"
	"github.com/spaghettifunk/anima-merge/engine/math"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
	"github.com/spaghettifunk/anima-merge/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, path string, bones ...string) {
	t.Helper()
	m := mesh.NewSkeletalMesh(filepath.Base(path))
	boneMap := make([]uint16, len(bones))
	for i, b := range bones {
		m.RefSkeleton.Bones = append(m.RefSkeleton.Bones, mesh.Bone{Name: b, ParentIndex: i - 1, Pose: math.TransformCreate()})
		boneMap[i] = uint16(i)
	}
	m.RefSkeleton.RecountChildren()
	m.Materials = []*mesh.Material{mesh.NewMaterial("skin")}

	vb := mesh.NewVertexBuffer(1, true, 3)
	for i := 0; i < 3; i++ {
		v := mesh.SkinVertex{Position: math.NewVec3(float32(i), 0, 0), TangentZ: math.NewVec4(0, 0, 1, 1)}
		v.InfluenceWeights[0] = 255
		vb.Vertices = append(vb.Vertices, v)
		vb.SetUV(i, 0, math.NewVec2(0, 0))
	}
	m.LODModels = []*mesh.LODModel{{
		Sections:          []mesh.Section{{NumTriangles: 1}},
		Chunks:            []mesh.Chunk{{NumRigidVertices: 3, MaxBoneInfluences: 1, BoneMap: boneMap}},
		ActiveBoneIndices: boneMap,
		RequiredBones:     boneMap,
		VertexBuffer:      vb,
		IndexBuffer:       mesh.NewIndexBuffer([]uint32{0, 1, 2}, false),
		NumVertices:       3,
	}}
	m.LODInfo = []mesh.LODInfo{{DisplayFactor: 1, LODMaterialMap: []int{0}, EnableShadowCasting: []bool{true}}}
	require.NoError(t, loaders.SaveSkeletalMesh(path, m))
}

func writeRecipe(t *testing.T, dir, name string, sources ...string) string {
	t.Helper()
	quoted := make([]string, len(sources))
	for i, s := range sources {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	data := fmt.Sprintf("name = %q\noutput = \"out/%s.askm\"\nsources = [%s]\n", name, name, strings.Join(quoted, ", "))
	path := filepath.Join(dir, name+".toml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func newTestEngine(t *testing.T, config *ApplicationConfig) *Engine {
	t.Helper()
	e, err := New(config)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())
	return e
}

func TestNewRequiresRecipes(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&ApplicationConfig{Name: "test"})
	assert.Error(t, err)
}

func TestEngineBatch(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, filepath.Join(dir, "body.askm"), "Root", "Spine")
	writeSource(t, filepath.Join(dir, "head.askm"), "Root", "Spine", "Head")
	recipe := writeRecipe(t, dir, "hero", "body.askm", "head.askm")

	e := newTestEngine(t, &ApplicationConfig{Name: "test", Recipes: []string{recipe}, Workers: 2})
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, EngineStageRunning, e.Stage())

	history := e.History()
	require.Len(t, history, 1)
	require.NoError(t, history[0].Err)
	assert.Equal(t, 3, history[0].Mesh.RefSkeleton.Num())
	assert.FileExists(t, filepath.Join(dir, "out", "hero.askm"))

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
}

func TestEngineBatchFailure(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, filepath.Join(dir, "body.askm"), "Root")
	good := writeRecipe(t, dir, "good", "body.askm")
	bad := writeRecipe(t, dir, "bad", "missing.askm")

	e := newTestEngine(t, &ApplicationConfig{Name: "test", Recipes: []string{good, bad}})
	defer e.Shutdown()

	assert.Error(t, e.Run(context.Background()))
	assert.Len(t, e.History(), 2)
	assert.FileExists(t, filepath.Join(dir, "out", "good.askm"))
	assert.NoFileExists(t, filepath.Join(dir, "out", "bad.askm"))
}

func TestEngineRejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	recipe := writeRecipe(t, dir, "hero", "body.askm")
	e, err := New(&ApplicationConfig{Name: "test", Recipes: []string{recipe}, LogLevel: "loud"})
	require.NoError(t, err)
	assert.Error(t, e.Initialize())
	require.NoError(t, e.Shutdown())
}

func TestAffectedRecipes(t *testing.T) {
	dir := t.TempDir()
	body := filepath.Join(dir, "body.askm")
	head := filepath.Join(dir, "head.askm")
	hero := filepath.Join(dir, "hero.toml")
	chained := filepath.Join(dir, "chained.toml")
	heroOut := filepath.Join(dir, "out", "hero.askm")

	e, err := New(&ApplicationConfig{Name: "test", Recipes: []string{hero}})
	require.NoError(t, err)
	defer e.Shutdown()
	e.recipes[hero] = &resources.MergeRecipe{Name: "hero", Output: heroOut, Sources: []string{body, "", head}}
	e.recipes[chained] = &resources.MergeRecipe{Name: "chained", Output: filepath.Join(dir, "out", "chained.askm"), Sources: []string{heroOut, body}}

	tests := []struct {
		name   string
		change assets.AssetChange
		want   []string
	}{
		{"shared source", assets.AssetChange{Path: body, Type: resources.ResourceTypeSkeletalMesh}, []string{chained, hero}},
		{"single source", assets.AssetChange{Path: head, Type: resources.ResourceTypeSkeletalMesh}, []string{hero}},
		{"output feeds another recipe", assets.AssetChange{Path: heroOut, Type: resources.ResourceTypeSkeletalMesh}, []string{chained}},
		{"removed source", assets.AssetChange{Path: body, Type: resources.ResourceTypeSkeletalMesh, Removed: true}, nil},
		{"unrelated mesh", assets.AssetChange{Path: filepath.Join(dir, "tail.askm"), Type: resources.ResourceTypeSkeletalMesh}, nil},
		{"unrelated recipe", assets.AssetChange{Path: filepath.Join(dir, "other.toml"), Type: resources.ResourceTypeMergeRecipe}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.affectedRecipes(tt.change))
		})
	}
}

func TestEngineWatchesSourcesAddedToRecipe(t *testing.T) {
	dir := t.TempDir()
	parts := filepath.Join(dir, "parts")
	require.NoError(t, os.MkdirAll(parts, 0o755))
	writeSource(t, filepath.Join(dir, "body.askm"), "Root", "Spine")
	recipe := writeRecipe(t, dir, "hero", "body.askm")

	e := newTestEngine(t, &ApplicationConfig{Name: "test", Recipes: []string{recipe}, Watch: true})
	defer e.Shutdown()
	assert.Contains(t, e.watched, dir)
	assert.NotContains(t, e.watched, parts)

	recipe = writeRecipe(t, dir, "hero", "body.askm", "parts/arm.askm")
	affected := e.affectedRecipes(assets.AssetChange{Path: recipe, Type: resources.ResourceTypeMergeRecipe})
	assert.Equal(t, []string{recipe}, affected)
	assert.Contains(t, e.watched, parts)
}

func TestEngineWatchMergesAgain(t *testing.T) {
	dir := t.TempDir()
	body := filepath.Join(dir, "body.askm")
	writeSource(t, body, "Root", "Spine")
	recipe := writeRecipe(t, dir, "hero", "body.askm")

	e := newTestEngine(t, &ApplicationConfig{
		Name:     "test",
		Recipes:  []string{recipe},
		Watch:    true,
		Debounce: 20 * time.Millisecond,
	})
	defer e.Shutdown()

	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background())
	}()

	require.Eventually(t, func() bool { return len(e.History()) >= 1 }, 5*time.Second, 10*time.Millisecond)

	writeSource(t, body, "Root", "Spine", "Neck")
	require.Eventually(t, func() bool {
		history := e.History()
		last := history[len(history)-1]
		return len(history) >= 2 && last.Err == nil && last.Mesh.RefSkeleton.Num() == 3
	}, 5*time.Second, 10*time.Millisecond)

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
