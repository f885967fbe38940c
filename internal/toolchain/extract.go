package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/mholt/archives"
)

const (
	stagingSuffix  = ".extracting"
	previousSuffix = ".previous"
)

// StagingDir returns the sibling directory extraction writes into.
func StagingDir(dest string) string {
	return dest + stagingSuffix
}

// ExtractAtomic expands archivePath into dest. Entries are written to
// StagingDir(dest) and the staging directory is renamed into place only
// after every entry succeeded. On failure the staging directory is removed
// and dest keeps its prior state.
func ExtractAtomic(ctx context.Context, archivePath, dest string) error {
	staging := StagingDir(dest)
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	if err := extractArchive(ctx, archivePath, staging); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	if err := promote(staging, dest); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	return nil
}

// promote swaps staging into dest. An existing dest is moved aside first and
// restored if the final rename fails.
func promote(staging, dest string) error {
	previous := dest + previousSuffix
	if err := os.RemoveAll(previous); err != nil {
		return fmt.Errorf("clear previous dir: %w", err)
	}

	hadPrevious := false
	if _, err := os.Lstat(dest); err == nil {
		if err := os.Rename(dest, previous); err != nil {
			return fmt.Errorf("move aside %s: %w", dest, err)
		}
		hadPrevious = true
	}

	if err := os.Rename(staging, dest); err != nil {
		if hadPrevious {
			_ = os.Rename(previous, dest)
		}
		return fmt.Errorf("commit %s: %w", dest, err)
	}

	if hadPrevious {
		_ = os.RemoveAll(previous)
	}
	return nil
}

func extractArchive(ctx context.Context, archivePath, staging string) error {
	kind, err := filetype.MatchFile(archivePath)
	if err != nil {
		return fmt.Errorf("identify archive: %w", err)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	root, err := os.OpenRoot(staging)
	if err != nil {
		return fmt.Errorf("open staging dir: %w", err)
	}
	defer root.Close()

	handler := writeEntry(root, staging)

	switch kind.MIME.Value {
	case "application/zip":
		err = archives.Zip{}.Extract(ctx, file, handler)
	case "application/gzip":
		err = extractCompressedTar(ctx, archives.Gz{}, file, handler)
	case "application/x-bzip2":
		err = extractCompressedTar(ctx, archives.Bz2{}, file, handler)
	case "application/x-xz":
		err = extractCompressedTar(ctx, archives.Xz{}, file, handler)
	default:
		name := kind.MIME.Value
		if kind == filetype.Unknown {
			name = "unknown"
		}
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedArchive, filepath.Base(archivePath), name)
	}
	if err != nil {
		return fmt.Errorf("extract %s: %w", filepath.Base(archivePath), err)
	}
	return nil
}

type decompressor interface {
	OpenReader(r io.Reader) (io.ReadCloser, error)
}

func extractCompressedTar(ctx context.Context, codec decompressor, r io.Reader, handler archives.FileHandler) error {
	decoded, err := codec.OpenReader(r)
	if err != nil {
		return err
	}
	defer decoded.Close()
	return archives.Tar{}.Extract(ctx, decoded, handler)
}

// writeEntry writes entries beneath staging. Files and directories go
// through root, which refuses to follow links out of the staging dir.
func writeEntry(root *os.Root, staging string) archives.FileHandler {
	return func(ctx context.Context, info archives.FileInfo) error {
		target, err := safeJoin(staging, info.NameInArchive)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staging, target)
		if err != nil {
			return fmt.Errorf("archive entry %q: %w", info.NameInArchive, err)
		}

		mode := info.Mode()
		switch {
		case info.IsDir():
			return mkdirIn(root, rel)
		case mode&fs.ModeSymlink != 0:
			return writeSymlink(root, staging, rel, info.LinkTarget)
		case !mode.IsRegular():
			return nil
		}

		if err := mkdirIn(root, filepath.Dir(rel)); err != nil {
			return fmt.Errorf("prepare file %s: %w", rel, err)
		}

		perm := mode.Perm()
		if perm == 0 {
			perm = 0o644
		}
		out, err := root.OpenFile(rel, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
		if err != nil {
			return fmt.Errorf("create file %s: %w", rel, err)
		}

		rc, err := info.Open()
		if err != nil {
			out.Close()
			return fmt.Errorf("open entry %s: %w", info.NameInArchive, err)
		}
		if _, err := io.Copy(out, rc); err != nil {
			rc.Close()
			out.Close()
			return fmt.Errorf("copy file %s: %w", rel, err)
		}
		rc.Close()
		if err := out.Close(); err != nil {
			return fmt.Errorf("close file %s: %w", rel, err)
		}
		return nil
	}
}

// mkdirIn creates rel and its parents inside root.
func mkdirIn(root *os.Root, rel string) error {
	rel = filepath.Clean(rel)
	if rel == "." {
		return nil
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for i := range parts {
		dir := filepath.Join(parts[:i+1]...)
		if err := root.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	return nil
}

// writeSymlink creates a link at rel after checking that its target stays in
// staging. Targets must be relative, and ".." is only accepted as a leading
// segment so every step up is taken from the link's real parent directory.
func writeSymlink(root *os.Root, staging, rel, linkTarget string) error {
	if err := mkdirIn(root, filepath.Dir(rel)); err != nil {
		return fmt.Errorf("prepare link %s: %w", rel, err)
	}

	realRoot, err := filepath.EvalSymlinks(staging)
	if err != nil {
		return fmt.Errorf("resolve staging dir: %w", err)
	}
	parent, err := filepath.EvalSymlinks(filepath.Join(staging, filepath.Dir(rel)))
	if err != nil {
		return fmt.Errorf("resolve link parent %s: %w", rel, err)
	}
	if !within(realRoot, parent) {
		return fmt.Errorf("archive link %q escapes extraction dir", rel)
	}

	if linkTarget == "" || filepath.IsAbs(linkTarget) || strings.HasPrefix(linkTarget, "/") || filepath.VolumeName(linkTarget) != "" {
		return fmt.Errorf("archive link %q has unsafe target %q", rel, linkTarget)
	}
	resolved := parent
	named := false
	for _, seg := range strings.FieldsFunc(linkTarget, func(r rune) bool { return r == '/' || r == '\\' }) {
		switch {
		case seg == ".":
		case seg == "..":
			if named {
				return fmt.Errorf("archive link %q has unsafe target %q", rel, linkTarget)
			}
			resolved = filepath.Dir(resolved)
		default:
			named = true
			resolved = filepath.Join(resolved, seg)
		}
	}
	if !within(realRoot, resolved) {
		return fmt.Errorf("archive link %q points outside extraction dir (%s)", rel, linkTarget)
	}

	return os.Symlink(linkTarget, filepath.Join(parent, filepath.Base(rel)))
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// safeJoin resolves an archive entry name beneath root, rejecting entries
// that would escape it.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction dir", name)
	}
	return target, nil
}
