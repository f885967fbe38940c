package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectPaths captures canonical locations for an openblock project.
type ProjectPaths struct {
	Root          string
	ManifestFile  string
	MetaDir       string
	ConfigFile    string
	ToolchainsDir string
	DownloadsDir  string
	LogsDir       string
}

// Resolve determines the project root using the optional --project flag or the
// current working directory when the flag is empty.
func Resolve(projectFlag string) (ProjectPaths, error) {
	var (
		root string
		err  error
	)

	if projectFlag != "" {
		root, err = filepath.Abs(projectFlag)
	} else {
		root, err = os.Getwd()
	}
	if err != nil {
		return ProjectPaths{}, fmt.Errorf("resolve project root: %w", err)
	}

	return New(root), nil
}

// New lays out the standard paths beneath root.
func New(root string) ProjectPaths {
	metaDir := filepath.Join(root, ".openblock")
	return ProjectPaths{
		Root:          root,
		ManifestFile:  filepath.Join(root, "package.json"),
		MetaDir:       metaDir,
		ConfigFile:    filepath.Join(metaDir, "config.yaml"),
		ToolchainsDir: filepath.Join(metaDir, "toolchains"),
		DownloadsDir:  filepath.Join(metaDir, "downloads"),
		LogsDir:       filepath.Join(metaDir, "logs"),
	}
}

// ToolchainDir returns the extraction directory for a named toolchain.
func (p ProjectPaths) ToolchainDir(name string) string {
	return filepath.Join(p.ToolchainsDir, name)
}

// ResolveLocal resolves a project-relative path against the root.
func (p ProjectPaths) ResolveLocal(value string) string {
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(p.Root, filepath.FromSlash(value))
}

// EnsureMetaDirs creates the hidden .openblock directory with its toolchains,
// downloads and logs children.
func (p ProjectPaths) EnsureMetaDirs() error {
	dirs := []string{p.MetaDir, p.ToolchainsDir, p.DownloadsDir, p.LogsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirNonEmpty reports whether path is a directory holding at least one entry.
func DirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}
