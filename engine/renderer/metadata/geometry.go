package metadata

/** @brief The kind of geometry a bottom level acceleration structure is built from. */
type GeometryType uint8

const (
	GeometryTypeTriangles GeometryType = iota
	GeometryTypeProceduralAABBs
)

type GeometryFlag uint8

const (
	GeometryFlagOpaque GeometryFlag = 1 << iota
	GeometryFlagNoDuplicateAnyHitInvocation
)

/** @brief Indexed triangle geometry. Addresses are GPU virtual addresses. */
type TrianglesDesc struct {
	VertexBuffer uint64
	VertexStride uint64
	VertexCount  uint32
	VertexFormat Format
	IndexBuffer  uint64
	IndexCount   uint32
	IndexFormat  Format
	Transform    uint64
}

/** @brief Axis aligned boxes bounding procedural primitives. */
type AABBsDesc struct {
	AABBs  uint64
	Stride uint64
	Count  uint64
}

/** @brief One geometry of a bottom level build. Only the member matching Type is read. */
type GeometryDesc struct {
	Type      GeometryType
	Flags     GeometryFlag
	Triangles TrianglesDesc
	AABBs     AABBsDesc
}

type AccelerationStructureType uint8

const (
	AccelerationStructureTypeBottomLevel AccelerationStructureType = iota
	AccelerationStructureTypeTopLevel
)

func (t AccelerationStructureType) String() string {
	if t == AccelerationStructureTypeTopLevel {
		return "TopLevel"
	}
	return "BottomLevel"
}

type AccelerationStructureBuildFlag uint8

const (
	AccelerationStructureBuildFlagPreferFastTrace AccelerationStructureBuildFlag = 1 << iota
	AccelerationStructureBuildFlagAllowUpdate
)

/**
 * @brief Inputs of an acceleration structure build. Bottom levels use
 * Geometries, top levels use InstanceDescs and InstanceCount.
 */
type AccelerationStructureInputs struct {
	Type          AccelerationStructureType
	Flags         AccelerationStructureBuildFlag
	Geometries    []GeometryDesc
	InstanceDescs uint64
	InstanceCount uint32
}

/** @brief Sizes the device needs for a build. */
type PrebuildInfo struct {
	ResultDataMaxSize     uint64
	ScratchDataSize       uint64
	UpdateScratchDataSize uint64
}

/** @brief A fully resolved build command. */
type AccelerationStructureBuildDesc struct {
	Inputs         AccelerationStructureInputs
	DestAddress    uint64
	ScratchAddress uint64
}

/** @brief Size of a packed top level instance description. */
const InstanceDescSize = 64
