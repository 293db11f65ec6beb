package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-merge/engine/assets/loaders"
	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
)

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

type MaterialSystemConfig struct {
	/** @brief The maximum number of materials that can be registered at once. */
	MaxMaterialCount uint32
}

type materialReference struct {
	material       *mesh.Material
	referenceCount uint64
}

// MaterialSystem hands out one material instance per name so meshes loaded
// separately share material pointers. Safe for concurrent use.
type MaterialSystem struct {
	Config          *MaterialSystemConfig
	DefaultMaterial *mesh.Material

	mutex      sync.Mutex
	registered map[string]*materialReference
}

func NewMaterialSystem(config *MaterialSystemConfig) (*MaterialSystem, error) {
	if config == nil || config.MaxMaterialCount == 0 {
		err := fmt.Errorf("func NewMaterialSystem - config.MaxMaterialCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	return &MaterialSystem{
		Config:          config,
		DefaultMaterial: mesh.NewMaterial(DefaultMaterialName),
		registered:      make(map[string]*materialReference),
	}, nil
}

// Acquire returns the material registered under name, creating it on first
// use, and increments its reference count. An empty name or the default
// name returns the default material.
func (ms *MaterialSystem) Acquire(name string) (*mesh.Material, error) {
	if name == "" || name == DefaultMaterialName {
		return ms.DefaultMaterial, nil
	}
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ref, ok := ms.registered[name]
	if !ok {
		if uint32(len(ms.registered)) >= ms.Config.MaxMaterialCount {
			return nil, fmt.Errorf("material system cannot register '%s', %d materials already registered", name, ms.Config.MaxMaterialCount)
		}
		ref = &materialReference{material: mesh.NewMaterial(name)}
		ms.registered[name] = ref
		core.LogDebug("material '%s' registered", name)
	}
	ref.referenceCount++
	return ref.material, nil
}

// Release decrements the reference count of name and forgets the material
// once nothing references it.
func (ms *MaterialSystem) Release(name string) {
	if name == "" || name == DefaultMaterialName {
		return
	}
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ref, ok := ms.registered[name]
	if !ok {
		core.LogWarn("material system release called for unknown material '%s'", name)
		return
	}
	ref.referenceCount--
	if ref.referenceCount == 0 {
		delete(ms.registered, name)
		core.LogDebug("material '%s' released", name)
	}
}

// Resolver adapts Acquire for the mesh loader. Names that cannot be
// registered fall back to the default material.
func (ms *MaterialSystem) Resolver() loaders.MaterialResolver {
	return func(name string) *mesh.Material {
		m, err := ms.Acquire(name)
		if err != nil {
			core.LogWarn("%s, using the default material", err.Error())
			return ms.DefaultMaterial
		}
		return m
	}
}

// Count returns the number of registered materials, the default excluded.
func (ms *MaterialSystem) Count() int {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	return len(ms.registered)
}

func (ms *MaterialSystem) Shutdown() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	ms.registered = make(map[string]*materialReference)
	return nil
}
