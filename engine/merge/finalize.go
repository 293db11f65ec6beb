package merge

import (
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/spaghettifunk/anima-merge/engine/math"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
)

// mergeSockets copies the sockets of the first source and adds the sockets
// of later sources whose names are not taken yet. A later socket reusing a
// name with another bone or transform is dropped with a warning.
func (m *MeshMerger) mergeSockets() ([]*mesh.Socket, error) {
	var sockets []*mesh.Socket
	for meshIdx, src := range m.sources {
		if src == nil {
			continue
		}
		for _, socket := range src.Sockets {
			if socket == nil {
				continue
			}
			if existing := mesh.FindSocket(sockets, socket.Name); existing != nil {
				if !existing.SameAttachment(socket) {
					m.warn(WarningSocketConflict, "source %d '%s' socket '%s' on bone '%s' differs from the socket already kept on bone '%s'",
						meshIdx, src.Name, socket.Name, socket.BoneName, existing.BoneName)
				}
				continue
			}
			dup := &mesh.Socket{}
			if err := copier.CopyWithOption(dup, socket, copier.Option{DeepCopy: true}); err != nil {
				return nil, fmt.Errorf("merge: copy socket '%s' of source %d: %w", socket.Name, meshIdx, err)
			}
			sockets = append(sockets, dup)
		}
	}
	return sockets, nil
}

// mergeMirrorTables remaps the mirror table of every source carrying one
// onto the merged skeleton. The first source describing a bone wins and
// bones no source describes mirror onto themselves. Returns nil when no
// source has a mirror table.
func (m *MeshMerger) mergeMirrorTables() []mesh.BoneMirrorInfo {
	var table []mesh.BoneMirrorInfo
	var assigned []bool

	for meshIdx, src := range m.sources {
		if src == nil || len(src.SkelMirrorTable) == 0 {
			continue
		}
		if len(src.SkelMirrorTable) != src.RefSkeleton.Num() {
			continue
		}
		if table == nil {
			table = make([]mesh.BoneMirrorInfo, m.skeleton.Num())
			assigned = make([]bool, m.skeleton.Num())
			for i := range table {
				table[i] = mesh.BoneMirrorInfo{SourceIndex: i, BoneFlipAxis: mesh.AxisNone}
			}
		}
		boneMap := m.srcToDstBoneMaps[meshIdx]
		for i, entry := range src.SkelMirrorTable {
			dst := boneMap[i]
			if assigned[dst] || entry.SourceIndex < 0 || entry.SourceIndex >= len(boneMap) {
				continue
			}
			table[dst] = mesh.BoneMirrorInfo{
				SourceIndex:  int(boneMap[entry.SourceIndex]),
				BoneFlipAxis: entry.BoneFlipAxis,
			}
			assigned[dst] = true
		}
	}
	return table
}

// finalize writes every staged result into the destination mesh.
func (m *MeshMerger) finalize(lods []*mesh.LODModel, infos []mesh.LODInfo, materials []*mesh.Material, sockets []*mesh.Socket) {
	dst := m.dst

	first := true
	var bounds math.BoxSphereBounds
	depth := 0
	for _, src := range m.sources {
		if src == nil {
			continue
		}
		if first {
			dst.Origin = src.Origin
			dst.RotOrigin = src.RotOrigin
			dst.SkelMirrorAxis = src.SkelMirrorAxis
			dst.SkelMirrorFlipAxis = src.SkelMirrorFlipAxis
			bounds = src.Bounds
			depth = src.SkeletalDepth
			first = false
			continue
		}
		bounds = bounds.Union(src.Bounds)
		depth = max(depth, src.SkeletalDepth)
	}

	dst.RefSkeleton = m.skeleton
	dst.RefBasesInvMatrix = m.skeleton.InverseBindMatrices()
	dst.SkelMirrorTable = m.mergeMirrorTables()
	dst.LODModels = lods
	dst.LODInfo = infos
	dst.Materials = materials
	dst.Sockets = sockets
	dst.Bounds = bounds
	dst.SkeletalDepth = depth
}
