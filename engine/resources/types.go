package resources

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Unknown or unsupported resource. */
	ResourceTypeNone ResourceType = iota
	/** @brief Binary resource type. Raw bytes. */
	ResourceTypeBinary
	/** @brief Skeletal mesh resource type (.askm). */
	ResourceTypeSkeletalMesh
	/** @brief Merge recipe resource type (.toml). */
	ResourceTypeMergeRecipe
	/** @brief Custom resource type. Used by loaders outside the core engine. */
	ResourceTypeCustom
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeSkeletalMesh:
		return "skeletal-mesh"
	case ResourceTypeMergeRecipe:
		return "merge-recipe"
	case ResourceTypeCustom:
		return "custom"
	}
	return "none"
}

/** @brief A magic number indicating the file as an anima binary file. */
const ResourceMagic uint32 = 0xdaaaadd1

/** @brief The current version of the skeletal mesh binary format. */
const SkeletalMeshVersion uint8 = 1

/**
 * @brief The header data for binary resource types.
 */
type ResourceHeader struct {
	/** @brief A magic number indicating the file as an anima binary file. */
	MagicNumber uint32
	/** @brief The resource type. Stored as a single byte. */
	ResourceType uint8
	/** @brief The format version this resource uses. */
	Version uint8
	/** @brief Reserved for future header data.. */
	Reserved uint16
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The type of the loaded data. */
	Type ResourceType
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}

/**
 * @brief Per source forced material IDs of a merge recipe.
 */
type SectionMappingConfig struct {
	SectionIDs []int `toml:"section_ids"`
}

/**
 * @brief A merge recipe: which meshes to merge, where to write the result
 * and how to merge them.
 */
type MergeRecipe struct {
	/** @brief The name of the merged mesh. */
	Name string `toml:"name"`
	/** @brief The output path of the merged mesh. */
	Output string `toml:"output"`
	/** @brief Source mesh paths. An empty path keeps an empty slot. */
	Sources []string `toml:"sources"`
	/** @brief The number of most detailed source LODs dropped. */
	StripTopLODs int `toml:"strip_top_lods"`
	/** @brief The bone limit of a merged chunk. Zero selects the default. */
	MaxBonesPerChunk int `toml:"max_bones_per_chunk"`
	/** @brief 32 bit UVs when true, 16 bit when false. Defaults to true. */
	FullPrecisionUVs *bool `toml:"full_precision_uvs"`
	/** @brief The log level used while running the recipe. */
	LogLevel string `toml:"log_level"`
	/** @brief Optional, one entry per source. */
	ForcedSectionMapping []SectionMappingConfig `toml:"forced_section_mapping"`

	/** @brief The path the recipe was loaded from. Not serialized. */
	Path string `toml:"-"`
}

// UseFullPrecisionUVs returns the UV precision, defaulting to full precision.
func (r *MergeRecipe) UseFullPrecisionUVs() bool {
	return r.FullPrecisionUVs == nil || *r.FullPrecisionUVs
}
