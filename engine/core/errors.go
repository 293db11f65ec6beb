package core

import (
	"errors"
)

var (
	ErrNoSourceMeshes        = errors.New("no valid source meshes to merge")
	ErrIncompatibleSkeletons = errors.New("source skeletons do not share a root bone")
	ErrInvalidSkeleton       = errors.New("invalid reference skeleton")
	ErrChunkBoneLimit        = errors.New("chunk bone map exceeds the bones per chunk limit")
	ErrInvalidResource       = errors.New("invalid resource data")
	ErrUnknownResourceType   = errors.New("unknown resource type")
	ErrSystemShutdown        = errors.New("system already shut down")
	ErrUnknown               = errors.New("unknown")
)
