package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"openblock/internal/httpx"
)

// ArchiveCache maps archive file names to files under Dir.
type ArchiveCache struct {
	Dir string
}

// Path returns where fileName is cached.
func (c ArchiveCache) Path(fileName string) string {
	return filepath.Join(c.Dir, filepath.Base(fileName))
}

// Reusable reports whether a cached copy of fileName can stand in for a
// fresh download. A copy is reused only when a checksum was supplied and it
// verifies.
func (c ArchiveCache) Reusable(fileName, checksum string) bool {
	if checksum == "" {
		return false
	}
	path := c.Path(fileName)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	ok, err := VerifyFileChecksum(path, checksum)
	return err == nil && ok
}

// Store writes data to the cache path for fileName via a temp file and rename.
func (c ArchiveCache) Store(fileName string, data []byte) (string, error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare downloads dir: %w", err)
	}
	dest := c.Path(fileName)

	tmpFile, err := os.CreateTemp(c.Dir, "download-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("finalize download: %w", err)
	}
	return dest, nil
}

// Progress is a download progress sample.
type Progress struct {
	Percent     int
	BytesPerSec float64
	Downloaded  int64
	Total       int64
}

// unknownTotalStep spaces samples when the server sends no length.
const unknownTotalStep = 1 << 20

// progressMeter counts bytes and reports only when the whole-number percent
// changes, or every unknownTotalStep bytes when the total is unknown.
type progressMeter struct {
	total        int64
	downloaded   int64
	lastPercent  int
	lastReported int64
	start        time.Time
	now          func() time.Time
	report       func(Progress)
}

func (m *progressMeter) Write(p []byte) (int, error) {
	m.downloaded += int64(len(p))
	if m.report == nil {
		return len(p), nil
	}

	percent := 0
	if m.total > 0 {
		percent = int(m.downloaded * 100 / m.total)
		if percent > 100 {
			percent = 100
		}
		if percent == m.lastPercent {
			return len(p), nil
		}
	} else if m.downloaded-m.lastReported < unknownTotalStep {
		return len(p), nil
	}
	m.lastPercent = percent
	m.lastReported = m.downloaded

	var speed float64
	if elapsed := m.now().Sub(m.start).Seconds(); elapsed > 0 {
		speed = float64(m.downloaded) / elapsed
	}
	m.report(Progress{
		Percent:     percent,
		BytesPerSec: speed,
		Downloaded:  m.downloaded,
		Total:       m.total,
	})
	return len(p), nil
}

// downloadArtifact collects the whole response body in memory. sizeHint is
// used as the total when the server omits Content-Length.
func downloadArtifact(ctx context.Context, client *http.Client, downloadURL string, sizeHint int64, now func() time.Time, report func(Progress)) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if now == nil {
		now = time.Now
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", httpx.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: unexpected status %s", downloadURL, resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = sizeHint
	}

	var buf bytes.Buffer
	if total > 0 && total < 1<<31 {
		buf.Grow(int(total))
	}
	meter := &progressMeter{
		total:       total,
		lastPercent: -1,
		start:       now(),
		now:         now,
		report:      report,
	}
	if _, err := io.Copy(io.MultiWriter(&buf, meter), resp.Body); err != nil {
		return nil, fmt.Errorf("download %s: %w", downloadURL, err)
	}
	return buf.Bytes(), nil
}
