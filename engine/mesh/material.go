package mesh

/**
 * @brief A material referenced by skeletal mesh sections. Sections of
 * different meshes share a material when they point at the same instance.
 */
type Material struct {
	/** @brief The material name. */
	Name string
}

func NewMaterial(name string) *Material {
	return &Material{Name: name}
}
