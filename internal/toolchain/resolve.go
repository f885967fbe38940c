package toolchain

import (
	"fmt"

	"openblock/internal/index"
)

// Artifact source labels, in resolution priority order.
const (
	SourceSystems   = "systems"
	SourcePlatforms = "platforms"
	SourceURL       = "url"
)

// Resolved is the concrete download chosen for one version on one host.
type Resolved struct {
	Version  string
	URL      string
	Checksum string
	FileName string
	Size     int64
	Source   string
}

// ResolveArtifact maps a version entry to a download for host (exact match
// into systems) or platform (key into platforms), falling back to the direct
// URL.
func ResolveArtifact(v index.VersionEntry, host, platform string) (Resolved, error) {
	if sys, ok := MatchSystem(v.Systems, host); ok && sys.URL != "" {
		return resolved(v.Version, sys.Artifact, SourceSystems), nil
	}
	if art, ok := v.Platforms[platform]; ok && art.URL != "" {
		return resolved(v.Version, art, SourcePlatforms), nil
	}
	if v.Direct != nil && v.Direct.URL != "" {
		return resolved(v.Version, *v.Direct, SourceURL), nil
	}
	return Resolved{}, fmt.Errorf("%w: version %s has no artifact for %s", ErrUnsupportedPlatform, v.Version, host)
}

func resolved(version string, art index.Artifact, source string) Resolved {
	return Resolved{
		Version:  version,
		URL:      art.URL,
		Checksum: art.Checksum,
		FileName: art.ArchiveName(),
		Size:     int64(art.Size),
		Source:   source,
	}
}
