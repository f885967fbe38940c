package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExtractAtomicZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "tc.zip")
	writeFile(t, archive, zipBytes(t, map[string]string{
		"bin/avr-gcc":     "compiler",
		"lib/libc/readme": "libc",
		"share/empty/":    "",
	}))
	dest := filepath.Join(dir, "toolchains", "avr-gcc")

	if err := ExtractAtomic(context.Background(), archive, dest); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "bin", "avr-gcc")); got != "compiler" {
		t.Fatalf("unexpected content %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "lib", "libc", "readme")); got != "libc" {
		t.Fatalf("unexpected content %q", got)
	}
	assertNotExist(t, StagingDir(dest))
}

func TestExtractAtomicTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "tc.tar.gz")
	writeFile(t, archive, tarGzBytes(t, map[string]string{"bin/arm-none-eabi-gcc": "arm"}))
	dest := filepath.Join(dir, "arm")

	if err := ExtractAtomic(context.Background(), archive, dest); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "bin", "arm-none-eabi-gcc")); got != "arm" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestExtractAtomicReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "tc")
	writeFile(t, filepath.Join(dest, "stale.txt"), []byte("old"))

	archive := filepath.Join(dir, "tc.zip")
	writeFile(t, archive, zipBytes(t, map[string]string{"fresh.txt": "new"}))

	if err := ExtractAtomic(context.Background(), archive, dest); err != nil {
		t.Fatalf("extract: %v", err)
	}
	assertNotExist(t, filepath.Join(dest, "stale.txt"))
	if got := readFile(t, filepath.Join(dest, "fresh.txt")); got != "new" {
		t.Fatalf("unexpected content %q", got)
	}
	assertNotExist(t, dest+previousSuffix)
}

func TestExtractAtomicCorruptArchiveLeavesDestUntouched(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "tc")
	writeFile(t, filepath.Join(dest, "keep.txt"), []byte("keep"))

	archive := filepath.Join(dir, "broken.zip")
	// zip signature followed by garbage
	writeFile(t, archive, append([]byte{'P', 'K', 0x03, 0x04}, []byte("not really a zip file at all")...))

	if err := ExtractAtomic(context.Background(), archive, dest); err == nil {
		t.Fatal("expected extraction error")
	}
	if got := readFile(t, filepath.Join(dest, "keep.txt")); got != "keep" {
		t.Fatalf("dest modified: %q", got)
	}
	assertNotExist(t, StagingDir(dest))
}

func TestExtractAtomicCorruptArchiveCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "tc")
	archive := filepath.Join(dir, "broken.zip")
	writeFile(t, archive, append([]byte{'P', 'K', 0x03, 0x04}, []byte("garbage")...))

	if err := ExtractAtomic(context.Background(), archive, dest); err == nil {
		t.Fatal("expected extraction error")
	}
	assertNotExist(t, dest)
	assertNotExist(t, StagingDir(dest))
}

func TestExtractAtomicUnsupportedArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "notes.txt")
	writeFile(t, archive, []byte("plain text is not an archive"))

	err := ExtractAtomic(context.Background(), archive, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrUnsupportedArchive) {
		t.Fatalf("expected ErrUnsupportedArchive, got %v", err)
	}
	assertNotExist(t, StagingDir(filepath.Join(dir, "out")))
}

func TestSafeJoinRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"../evil", "a/../../evil", "../"} {
		if _, err := safeJoin(root, name); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
	got, err := safeJoin(root, "bin/../bin/tool")
	if err != nil {
		t.Fatalf("safeJoin: %v", err)
	}
	if got != filepath.Join(root, "bin", "tool") {
		t.Fatalf("unexpected path %s", got)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "evil")); !os.IsNotExist(err) {
		t.Fatal("nothing should be written outside root")
	}
}

func TestExtractAtomicRejectsLinksOutOfStaging(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}

	tests := []struct {
		name    string
		entries func(outside string) []tarEntry
	}{
		{
			name: "absolute target then write through it",
			entries: func(outside string) []tarEntry {
				return []tarEntry{
					{name: "link", link: outside},
					{name: "link/evil.txt", body: "pwned"},
				}
			},
		},
		{
			name: "relative target climbing out",
			entries: func(string) []tarEntry {
				return []tarEntry{
					{name: "bin/link", link: "../../../outside"},
					{name: "bin/link/evil.txt", body: "pwned"},
				}
			},
		},
		{
			name: "parent hop after a link",
			entries: func(string) []tarEntry {
				return []tarEntry{
					{name: "self", link: "."},
					{name: "self/up", link: ".."},
					{name: "self/up/outside/evil.txt", body: "pwned"},
				}
			},
		},
		{
			name: "dot-dot hidden behind a name",
			entries: func(string) []tarEntry {
				return []tarEntry{
					{name: "self", link: "."},
					{name: "up", link: "self/.."},
					{name: "up/outside/evil.txt", body: "pwned"},
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			outside := filepath.Join(dir, "outside")
			if err := os.MkdirAll(outside, 0o755); err != nil {
				t.Fatal(err)
			}
			archive := filepath.Join(dir, "tc.tar.gz")
			writeFile(t, archive, tarGzEntries(t, tc.entries(outside)))
			dest := filepath.Join(dir, "toolchains", "tc")

			if err := ExtractAtomic(context.Background(), archive, dest); err == nil {
				t.Fatal("expected extraction to fail")
			}
			assertNotExist(t, filepath.Join(outside, "evil.txt"))
			assertNotExist(t, dest)
			assertNotExist(t, StagingDir(dest))
		})
	}
}

func TestExtractAtomicKeepsInternalLinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}

	dir := t.TempDir()
	archive := filepath.Join(dir, "tc.tar.gz")
	writeFile(t, archive, tarGzEntries(t, []tarEntry{
		{name: "lib/libfoo.so.1", body: "so"},
		{name: "lib/libfoo.so", link: "libfoo.so.1"},
		{name: "bin/libfoo", link: "../lib/libfoo.so"},
	}))
	dest := filepath.Join(dir, "tc")

	if err := ExtractAtomic(context.Background(), archive, dest); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "bin", "libfoo")); got != "so" {
		t.Fatalf("unexpected content through links %q", got)
	}
	target, err := os.Readlink(filepath.Join(dest, "lib", "libfoo.so"))
	if err != nil || target != "libfoo.so.1" {
		t.Fatalf("readlink = %q, %v", target, err)
	}
}
