package index

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// PackagesIndex is a snapshot of the registry's known packages.
type PackagesIndex struct {
	Devices    []json.RawMessage `json:"devices"`
	Extensions []json.RawMessage `json:"extensions"`
	Libraries  []Package         `json:"libraries"`
	Toolchains []Package         `json:"toolchains"`

	// Skipped holds decode errors for entries dropped from Libraries and
	// Toolchains.
	Skipped []error `json:"-"`
}

// UnmarshalJSON decodes libraries and toolchains one entry at a time so a
// malformed entry is dropped instead of failing the whole document.
func (p *PackagesIndex) UnmarshalJSON(data []byte) error {
	var raw struct {
		Devices    []json.RawMessage `json:"devices"`
		Extensions []json.RawMessage `json:"extensions"`
		Libraries  []json.RawMessage `json:"libraries"`
		Toolchains []json.RawMessage `json:"toolchains"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Devices = raw.Devices
	p.Extensions = raw.Extensions
	p.Skipped = nil
	p.Libraries = p.decodePackages("libraries", raw.Libraries)
	p.Toolchains = p.decodePackages("toolchains", raw.Toolchains)
	return nil
}

func (p *PackagesIndex) decodePackages(kind string, items []json.RawMessage) []Package {
	if items == nil {
		return nil
	}
	out := make([]Package, 0, len(items))
	for i, item := range items {
		var pkg Package
		if err := json.Unmarshal(item, &pkg); err != nil {
			p.Skipped = append(p.Skipped, fmt.Errorf("%s[%d]: %w", kind, i, err))
			continue
		}
		out = append(out, pkg)
	}
	return out
}

// Empty returns the structure handed back when no source answered.
func Empty() *PackagesIndex {
	return &PackagesIndex{
		Devices:    []json.RawMessage{},
		Extensions: []json.RawMessage{},
		Libraries:  []Package{},
		Toolchains: []Package{},
	}
}

func (p *PackagesIndex) normalize() {
	if p.Devices == nil {
		p.Devices = []json.RawMessage{}
	}
	if p.Extensions == nil {
		p.Extensions = []json.RawMessage{}
	}
	if p.Libraries == nil {
		p.Libraries = []Package{}
	}
	if p.Toolchains == nil {
		p.Toolchains = []Package{}
	}
}

// FindToolchain returns the toolchain whose id or name equals name exactly.
func (p *PackagesIndex) FindToolchain(name string) (Package, bool) {
	if p == nil {
		return Package{}, false
	}
	return find(p.Toolchains, name)
}

// FindLibrary returns the library whose id or name equals name exactly.
func (p *PackagesIndex) FindLibrary(name string) (Package, bool) {
	if p == nil {
		return Package{}, false
	}
	return find(p.Libraries, name)
}

func find(pkgs []Package, name string) (Package, bool) {
	for _, pkg := range pkgs {
		if pkg.ID == name || pkg.Name == name {
			return pkg, true
		}
	}
	return Package{}, false
}

// Package is a toolchain or library entry. Versions is ordered newest first;
// an entry published with a single inline version has exactly one element.
type Package struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Versions []VersionEntry `json:"versions"`
}

// Latest returns the newest resolvable version.
func (p Package) Latest() (VersionEntry, bool) {
	if len(p.Versions) == 0 {
		return VersionEntry{}, false
	}
	return p.Versions[0], true
}

// Key returns the id, falling back to the name.
func (p Package) Key() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}

// UnmarshalJSON folds the single-version and versions-list shapes into
// Versions. A non-empty versions list wins over an inline version.
func (p *Package) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string            `json:"id"`
		Name     string            `json:"name"`
		Version  string            `json:"version"`
		Versions []json.RawMessage `json:"versions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.ID = raw.ID
	p.Name = raw.Name
	p.Versions = nil

	switch {
	case len(raw.Versions) > 0:
		p.Versions = make([]VersionEntry, 0, len(raw.Versions))
		for i, item := range raw.Versions {
			var v VersionEntry
			if err := json.Unmarshal(item, &v); err != nil {
				return fmt.Errorf("package %s version %d: %w", p.Key(), i, err)
			}
			p.Versions = append(p.Versions, v)
		}
	case raw.Version != "":
		var v VersionEntry
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("package %s: %w", p.Key(), err)
		}
		p.Versions = []VersionEntry{v}
	}
	return nil
}

// Artifact is one downloadable archive.
type Artifact struct {
	URL      string `json:"url"`
	Checksum string `json:"checksum,omitempty"`
	FileName string `json:"archiveFileName,omitempty"`
	Size     Size   `json:"size,omitempty"`
}

// ArchiveName returns FileName, or the last URL path segment when the
// metadata omitted it.
func (a Artifact) ArchiveName() string {
	if a.FileName != "" {
		return a.FileName
	}
	parsed, err := url.Parse(a.URL)
	if err != nil {
		return ""
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return base
}

// System is a host-specific artifact.
type System struct {
	Host string `json:"host"`
	Artifact
}

// VersionEntry is one resolvable version. The artifact shapes are decoded
// once; Resolve picks among them in a fixed priority order.
type VersionEntry struct {
	Version   string
	Systems   []System
	Platforms map[string]Artifact
	Direct    *Artifact
}

type versionWire struct {
	Version         string              `json:"version"`
	Systems         []System            `json:"systems,omitempty"`
	Platforms       map[string]Artifact `json:"platforms,omitempty"`
	URL             string              `json:"url,omitempty"`
	Checksum        string              `json:"checksum,omitempty"`
	ArchiveFileName string              `json:"archiveFileName,omitempty"`
	Size            Size                `json:"size,omitempty"`
}

// UnmarshalJSON decodes the wire shape.
func (v *VersionEntry) UnmarshalJSON(data []byte) error {
	var w versionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.Version = w.Version
	v.Systems = w.Systems
	v.Platforms = w.Platforms
	v.Direct = nil
	if w.URL != "" {
		v.Direct = &Artifact{URL: w.URL, Checksum: w.Checksum, FileName: w.ArchiveFileName, Size: w.Size}
	}
	return nil
}

// MarshalJSON encodes the wire shape.
func (v VersionEntry) MarshalJSON() ([]byte, error) {
	w := versionWire{
		Version:   v.Version,
		Systems:   v.Systems,
		Platforms: v.Platforms,
	}
	if v.Direct != nil {
		w.URL = v.Direct.URL
		w.Checksum = v.Direct.Checksum
		w.ArchiveFileName = v.Direct.FileName
		w.Size = v.Direct.Size
	}
	return json.Marshal(w)
}

// Size is a byte count that registries publish either as a number or as a
// numeric string.
type Size int64

// UnmarshalJSON accepts 123, 1.5e6, "123" and "". Fractions are truncated.
func (s *Size) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		*s = 0
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		text = strings.TrimSpace(str)
		if text == "" {
			*s = 0
			return nil
		}
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		*s = Size(n)
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt64 {
		return fmt.Errorf("invalid size %s", string(data))
	}
	*s = Size(f)
	return nil
}
