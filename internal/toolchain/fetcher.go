package toolchain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"openblock/internal/companion"
	"openblock/internal/index"
	"openblock/internal/logx"
	"openblock/internal/paths"
)

// IndexSource supplies the packages index.
type IndexSource interface {
	Get(ctx context.Context, opts index.Options) *index.PackagesIndex
}

// StatusChecker asks the companion service whether it already holds a
// toolchain.
type StatusChecker interface {
	ToolchainStatus(ctx context.Context, name string) (companion.ToolchainStatus, error)
}

// FetchOptions controls a fetch.
type FetchOptions struct {
	RegistryURL string
	// Force skips the already-extracted and service-cache checks and ignores
	// any cached archive.
	Force bool
}

// FetchResult is the outcome of fetching one toolchain. ExtractPath is set
// exactly when the toolchain's files sit in a local directory ready to merge.
type FetchResult struct {
	Name        string `json:"name"`
	Success     bool   `json:"success"`
	Version     string `json:"version,omitempty"`
	ExtractPath string `json:"extractPath,omitempty"`
	Error       string `json:"error,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
}

// BatchResult holds one result per requested name, in request order.
type BatchResult struct {
	Success bool          `json:"success"`
	Results []FetchResult `json:"results"`
}

// Fetcher downloads, verifies and extracts toolchains into a project.
type Fetcher struct {
	Index         IndexSource
	Service       StatusChecker
	HTTP         *http.Client
	Paths        paths.ProjectPaths
	Archives     ArchiveCache
	ManifestPath string
	Host         string
	Platform     string
	Events       chan<- Event
	Logger       hclog.Logger
	Now          func() time.Time
}

// NewFetcher wires a fetcher to the project's on-disk layout. service may be
// nil.
func NewFetcher(pp paths.ProjectPaths, idx IndexSource, service StatusChecker, logger hclog.Logger) *Fetcher {
	return &Fetcher{
		Index:        idx,
		Service:      service,
		HTTP:         &http.Client{},
		Paths:        pp,
		Archives:     ArchiveCache{Dir: pp.DownloadsDir},
		ManifestPath: filepath.Join(pp.MetaDir, "toolchains.json"),
		Host:         CurrentHost(),
		Platform:     HostPlatform(),
		Logger:       logx.OrNull(logger).Named("toolchain"),
		Now:          time.Now,
	}
}

func (f *Fetcher) logger() hclog.Logger {
	return logx.OrNull(f.Logger)
}

func (f *Fetcher) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

// FetchAll fetches names one after another. The cache directory and event
// stream are shared, so fetches never overlap.
func (f *Fetcher) FetchAll(ctx context.Context, names []string, opts FetchOptions) BatchResult {
	batch := BatchResult{Success: true, Results: make([]FetchResult, 0, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			batch.Success = false
			batch.Results = append(batch.Results, FetchResult{Name: name, Error: err.Error()})
			continue
		}
		res := f.Fetch(ctx, name, opts)
		if !res.Success {
			batch.Success = false
		}
		batch.Results = append(batch.Results, res)
	}
	return batch
}

// ValidateName rejects names that cannot be used as a single directory
// beneath the toolchains dir.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || name == "..", strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Fetch runs one toolchain through local check, service check, metadata and
// version resolution, download, verification and extraction. Failures are
// reported in the result, never returned.
func (f *Fetcher) Fetch(ctx context.Context, name string, opts FetchOptions) FetchResult {
	logger := f.logger().With("toolchain", name)
	f.emit(ctx, Event{Name: name, Stage: StageFetching})

	if err := ValidateName(name); err != nil {
		logger.Error("toolchain fetch failed", "error", err)
		f.emit(ctx, Event{Name: name, Stage: StageError, Message: err.Error()})
		return FetchResult{Name: name, Error: err.Error()}
	}
	dest := f.Paths.ToolchainDir(name)

	if !opts.Force {
		logger.Debug("checking local toolchain", "path", dest)
		if present, err := paths.DirNonEmpty(dest); err == nil && present {
			version := f.recordedVersion(name)
			logger.Info("toolchain already extracted", "version", version)
			f.emit(ctx, Event{Name: name, Stage: StageSkipped, Version: version, Message: "already extracted"})
			return FetchResult{Name: name, Success: true, Version: version, ExtractPath: dest, Skipped: true}
		}

		if f.Service != nil {
			logger.Debug("checking companion service cache")
			st, err := f.Service.ToolchainStatus(ctx, name)
			switch {
			case errors.Is(err, companion.ErrNotRunning):
				logger.Debug("companion service not running")
			case err != nil:
				logger.Debug("companion status check failed", "error", err)
			case st.Cached:
				logger.Info("toolchain cached by companion service", "version", st.Version)
				f.emit(ctx, Event{Name: name, Stage: StageSkipped, Version: st.Version, Message: "cached by service"})
				return FetchResult{Name: name, Success: true, Version: st.Version, Skipped: true}
			}
		}
	}

	res, err := f.fetchRemote(ctx, logger, name, dest, opts)
	if err != nil {
		logger.Error("toolchain fetch failed", "error", err)
		f.emit(ctx, Event{Name: name, Stage: StageError, Version: res.Version, Message: err.Error()})
		res.Success = false
		res.Error = err.Error()
		return res
	}
	f.emit(ctx, Event{Name: name, Stage: StageDone, Version: res.Version, Message: res.ExtractPath})
	return res
}

func (f *Fetcher) fetchRemote(ctx context.Context, logger hclog.Logger, name, dest string, opts FetchOptions) (FetchResult, error) {
	res := FetchResult{Name: name}

	logger.Debug("resolving metadata")
	var idx *index.PackagesIndex
	if f.Index != nil {
		idx = f.Index.Get(ctx, index.Options{RegistryURL: opts.RegistryURL})
	}
	pkg, ok := idx.FindToolchain(name)
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrToolchainNotFound, name)
	}

	logger.Debug("resolving version")
	latest, ok := pkg.Latest()
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrNoVersion, name)
	}
	res.Version = latest.Version

	logger.Debug("resolving url", "host", f.Host, "version", latest.Version)
	art, err := ResolveArtifact(latest, f.Host, f.Platform)
	if err != nil {
		return res, err
	}
	if art.FileName == "" {
		return res, fmt.Errorf("cannot infer archive name from %s", art.URL)
	}
	logger.Debug("artifact resolved", "source", art.Source, "url", art.URL, "archive", art.FileName)

	archivePath, err := f.obtainArchive(ctx, logger, name, art, opts.Force)
	if err != nil {
		return res, err
	}

	f.emit(ctx, Event{Name: name, Stage: StageExtracting, Version: art.Version})
	logger.Debug("extracting", "archive", archivePath, "dest", dest)
	if err := ExtractAtomic(ctx, archivePath, dest); err != nil {
		return res, err
	}

	res.Success = true
	res.ExtractPath = dest
	f.record(logger, name, art, dest)
	logger.Info("toolchain installed", "version", art.Version, "path", dest)
	return res, nil
}

// obtainArchive returns a verified archive path, reusing the cached copy when
// its checksum verifies.
func (f *Fetcher) obtainArchive(ctx context.Context, logger hclog.Logger, name string, art Resolved, force bool) (string, error) {
	if !force && f.Archives.Reusable(art.FileName, art.Checksum) {
		logger.Debug("reusing cached archive", "archive", art.FileName)
		return f.Archives.Path(art.FileName), nil
	}

	f.emit(ctx, Event{Name: name, Stage: StageDownloading, Version: art.Version, Total: art.Size})
	data, err := downloadArtifact(ctx, f.HTTP, art.URL, art.Size, f.now, func(p Progress) {
		f.emit(ctx, Event{
			Name:        name,
			Stage:       StageDownloading,
			Version:     art.Version,
			Percent:     p.Percent,
			BytesPerSec: p.BytesPerSec,
			Downloaded:  p.Downloaded,
			Total:       p.Total,
		})
	})
	if err != nil {
		return "", err
	}

	f.emit(ctx, Event{Name: name, Stage: StageVerifying, Version: art.Version})
	if art.Checksum == "" {
		logger.Warn("no checksum published; trusting download as-is", "url", art.URL)
	} else if !VerifyChecksum(data, art.Checksum) {
		return "", fmt.Errorf("%w for %s", ErrChecksumMismatch, art.FileName)
	}

	return f.Archives.Store(art.FileName, data)
}

func (f *Fetcher) recordedVersion(name string) string {
	if f.ManifestPath == "" {
		return ""
	}
	m, err := LoadManifest(f.ManifestPath)
	if err != nil {
		return ""
	}
	return m.Entries[name].Version
}

func (f *Fetcher) record(logger hclog.Logger, name string, art Resolved, dest string) {
	if f.ManifestPath == "" {
		return
	}
	m, err := LoadManifest(f.ManifestPath)
	if err != nil {
		logger.Warn("toolchain manifest unreadable; rewriting", "error", err)
		m = Manifest{Entries: map[string]ManifestEntry{}}
	}
	m.Entries[name] = ManifestEntry{
		Name:        name,
		Version:     art.Version,
		Host:        f.Host,
		Archive:     art.FileName,
		Checksum:    art.Checksum,
		Path:        dest,
		InstalledAt: f.now().UTC().Format(time.RFC3339),
	}
	if err := SaveManifest(f.ManifestPath, m); err != nil {
		logger.Warn("record toolchain manifest", "error", err)
	}
}
