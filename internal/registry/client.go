// Package registry locates model artifacts in an MLflow tracking server and
// model registry and loads them into model handles.
package registry

import (
	"context"

	"fraudd/internal/model"
)

// Experiment is a tracking-server experiment.
type Experiment struct {
	ID   string
	Name string
	// CreationTime is milliseconds since the unix epoch.
	CreationTime int64
}

// Run is a recorded training execution.
type Run struct {
	ID           string
	ExperimentID string
	// StartTime is milliseconds since the unix epoch.
	StartTime   int64
	ArtifactURI string
}

// Artifact is one entry of a run's artifact listing.
type Artifact struct {
	Path  string
	IsDir bool
	Size  int64
}

// ModelVersion is one registered version of a named model.
type ModelVersion struct {
	Name    string
	Version string
	Stage   string
	Source  string
	RunID   string
}

// Client is the registry surface consumed by the resolver.
type Client interface {
	ListExperiments(ctx context.Context) ([]Experiment, error)
	SearchRuns(ctx context.Context, experimentID string, orderByStartTimeDesc bool, maxResults int) ([]Run, error)
	ListArtifacts(ctx context.Context, runID, path string) ([]Artifact, error)
	GetLatestVersions(ctx context.Context, name string) ([]ModelVersion, error)
	LoadArtifact(ctx context.Context, loc Locator) (*model.Handle, error)
}
