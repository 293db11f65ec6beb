package merge

import (
	"fmt"

	"github.com/spaghettifunk/anima-merge/engine/core"
)

type WarningKind int

const (
	// Two sources define a socket with the same name but a different bone or transform.
	WarningSocketConflict WarningKind = iota
	// A section material index was outside the source material list.
	WarningMaterialClamped
	// A chunk claims more vertices than its source vertex buffer holds.
	WarningTruncatedVertices
	// A section claims more indices than its source index buffer holds, or
	// references vertices outside its chunk.
	WarningTruncatedIndices
	// A weighted vertex influence pointed past its chunk bone map and was dropped.
	WarningDroppedInfluences
)

func (k WarningKind) String() string {
	switch k {
	case WarningSocketConflict:
		return "socket-conflict"
	case WarningMaterialClamped:
		return "material-clamped"
	case WarningTruncatedVertices:
		return "truncated-vertices"
	case WarningTruncatedIndices:
		return "truncated-indices"
	case WarningDroppedInfluences:
		return "dropped-influences"
	}
	return "unknown"
}

// Warning is a problem the merge worked around.
type Warning struct {
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

func (m *MeshMerger) warn(kind WarningKind, format string, args ...interface{}) {
	w := Warning{Kind: kind, Message: fmt.Sprintf(format, args...)}
	m.warnings = append(m.warnings, w)
	core.LogWarn("%s", w.String())
}
