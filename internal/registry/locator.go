package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// LocatorKind tags the variant held by a Locator.
type LocatorKind int

const (
	KindDirect LocatorKind = iota
	KindRegistryNamed
	KindRunArtifact
)

func (k LocatorKind) String() string {
	switch k {
	case KindRegistryNamed:
		return "registry_named"
	case KindRunArtifact:
		return "run_artifact"
	default:
		return "direct"
	}
}

// Locator identifies a model artifact. Exactly one group of fields is
// meaningful, selected by Kind.
type Locator struct {
	Kind LocatorKind

	// KindDirect
	Path string

	// KindRegistryNamed
	Name           string
	StageOrVersion string

	// KindRunArtifact
	RunID        string
	ArtifactPath string
}

const (
	modelsScheme = "models:/"
	runsScheme   = "runs:/"
)

func Direct(path string) Locator { return Locator{Kind: KindDirect, Path: path} }

func RegistryNamed(name, stageOrVersion string) Locator {
	return Locator{Kind: KindRegistryNamed, Name: name, StageOrVersion: stageOrVersion}
}

func RunArtifact(runID, artifactPath string) Locator {
	return Locator{Kind: KindRunArtifact, RunID: runID, ArtifactPath: artifactPath}
}

// ParseLocator parses the registry URI syntax:
//
//	models:/<name>/<stage|version>
//	runs:/<run_id>/<artifact path>
//
// Any other string, including a malformed models:/ or runs:/ URI, is a Direct
// locator and will be tried as-is.
func ParseLocator(s string) Locator {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, modelsScheme):
		rest := strings.Trim(strings.TrimPrefix(s, modelsScheme), "/")
		if i := strings.LastIndex(rest, "/"); i > 0 && i < len(rest)-1 {
			return RegistryNamed(rest[:i], rest[i+1:])
		}
	case strings.HasPrefix(s, runsScheme):
		rest := strings.Trim(strings.TrimPrefix(s, runsScheme), "/")
		if i := strings.Index(rest, "/"); i > 0 && i < len(rest)-1 {
			return RunArtifact(rest[:i], rest[i+1:])
		}
	}
	return Direct(s)
}

// IsVersion reports whether a RegistryNamed locator pins a numeric version
// rather than a stage.
func (l Locator) IsVersion() bool {
	if l.Kind != KindRegistryNamed {
		return false
	}
	n, err := strconv.Atoi(l.StageOrVersion)
	return err == nil && n > 0
}

func (l Locator) String() string {
	switch l.Kind {
	case KindRegistryNamed:
		return fmt.Sprintf("%s%s/%s", modelsScheme, l.Name, l.StageOrVersion)
	case KindRunArtifact:
		return fmt.Sprintf("%s%s/%s", runsScheme, l.RunID, l.ArtifactPath)
	default:
		return l.Path
	}
}
