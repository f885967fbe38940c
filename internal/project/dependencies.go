// Package project reads the dependency declarations of an openblock project.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"openblock/internal/paths"
)

// LatestMarker is the only remote version selector a toolchain may declare.
const LatestMarker = "latest"

// ErrNoProjectConfig reports a project without a package.json.
var ErrNoProjectConfig = errors.New("project configuration not found")

// Dependencies is a classified view of a project's declarations. Local
// entries map a name to an absolute path; remote toolchains map a name to
// LatestMarker.
type Dependencies struct {
	LocalLibraries   map[string]string `json:"localLibraries"`
	LocalToolchains  map[string]string `json:"localToolchains"`
	RemoteToolchains map[string]string `json:"remoteToolchains"`
	Warnings         []string          `json:"warnings,omitempty"`
}

type manifestFile struct {
	OpenBlock struct {
		Dependencies struct {
			Libraries  map[string]json.RawMessage `json:"libraries"`
			Toolchains map[string]json.RawMessage `json:"toolchains"`
		} `json:"dependencies"`
	} `json:"openblock"`
}

// Resolve reads pp.ManifestFile and classifies every declared dependency.
// Values that are neither a relative path nor, for toolchains, "latest" are
// dropped with a warning.
func Resolve(pp paths.ProjectPaths) (Dependencies, error) {
	raw, err := os.ReadFile(pp.ManifestFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Dependencies{}, fmt.Errorf("%w: %s", ErrNoProjectConfig, pp.ManifestFile)
		}
		return Dependencies{}, fmt.Errorf("read %s: %w", pp.ManifestFile, err)
	}

	var manifest manifestFile
	if err := json.Unmarshal(jsonc.ToJSON(raw), &manifest); err != nil {
		return Dependencies{}, fmt.Errorf("parse %s: %w", pp.ManifestFile, err)
	}

	deps := Dependencies{
		LocalLibraries:   map[string]string{},
		LocalToolchains:  map[string]string{},
		RemoteToolchains: map[string]string{},
	}

	libs, err := stringValues("libraries", manifest.OpenBlock.Dependencies.Libraries)
	if err != nil {
		return Dependencies{}, fmt.Errorf("parse %s: %w", pp.ManifestFile, err)
	}
	for _, name := range sortedNames(libs) {
		value := libs[name]
		if !isRelativePath(value) {
			deps.Warnings = append(deps.Warnings,
				fmt.Sprintf("library %q: %q is not a relative path; only local libraries are supported", name, value))
			continue
		}
		deps.LocalLibraries[name] = pp.ResolveLocal(value)
	}

	toolchains, err := stringValues("toolchains", manifest.OpenBlock.Dependencies.Toolchains)
	if err != nil {
		return Dependencies{}, fmt.Errorf("parse %s: %w", pp.ManifestFile, err)
	}
	for _, name := range sortedNames(toolchains) {
		value := toolchains[name]
		switch {
		case value == LatestMarker:
			deps.RemoteToolchains[name] = LatestMarker
		case isRelativePath(value):
			deps.LocalToolchains[name] = pp.ResolveLocal(value)
		default:
			deps.Warnings = append(deps.Warnings,
				fmt.Sprintf("toolchain %q: %q is neither a relative path nor %q; skipped", name, value, LatestMarker))
		}
	}

	return deps, nil
}

// RemoteNames returns the remote toolchain names in sorted order.
func (d Dependencies) RemoteNames() []string {
	return sortedNames(d.RemoteToolchains)
}

// Validate checks that every local dependency exists on disk. All problems
// are returned together.
func (d Dependencies) Validate() []error {
	var errs []error
	check := func(kind string, entries map[string]string) {
		for _, name := range sortedNames(entries) {
			path := entries[name]
			info, err := os.Stat(path)
			switch {
			case err != nil && os.IsNotExist(err):
				errs = append(errs, fmt.Errorf("%s %q: path %s does not exist", kind, name, path))
			case err != nil:
				errs = append(errs, fmt.Errorf("%s %q: %w", kind, name, err))
			case !info.IsDir():
				errs = append(errs, fmt.Errorf("%s %q: path %s is not a directory", kind, name, path))
			}
		}
	}
	check("library", d.LocalLibraries)
	check("toolchain", d.LocalToolchains)
	return errs
}

func stringValues(section string, raw map[string]json.RawMessage) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for name, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, fmt.Errorf("%s.%s must be a string, got %s", section, name, strings.TrimSpace(string(value)))
		}
		out[name] = strings.TrimSpace(s)
	}
	return out, nil
}

func isRelativePath(value string) bool {
	return strings.HasPrefix(value, "./") || strings.HasPrefix(value, "../")
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
