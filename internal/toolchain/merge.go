package toolchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"openblock/internal/companion"
	"openblock/internal/logx"
)

// Merger combines an extracted toolchain directory into a platform's shared
// tree.
type Merger interface {
	MergeToolchain(ctx context.Context, platform, sourcePath string) (companion.MergeStats, error)
}

// MergeItem records one successful merge.
type MergeItem struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Path     string `json:"path"`
	Merged   int    `json:"merged"`
	Skipped  int    `json:"skipped"`
}

// MergeReport summarises a merge pass. Success is true only when Errors is
// empty.
type MergeReport struct {
	Success bool        `json:"success"`
	Items   []MergeItem `json:"items"`
	Errors  []string    `json:"errors,omitempty"`
}

// MergeCoordinator hands extracted toolchains to the companion service.
type MergeCoordinator struct {
	Merger Merger
	// Families maps a toolchain name prefix to its platform family.
	Families map[string]string
	Logger   hclog.Logger
}

// Family returns the platform family for a toolchain name: the mapping of the
// longest configured prefix, else the name up to its first dash.
func (m *MergeCoordinator) Family(name string) string {
	best := ""
	family := ""
	for prefix, platform := range m.Families {
		if prefix == "" || !strings.HasPrefix(name, prefix) {
			continue
		}
		if len(prefix) > len(best) {
			best = prefix
			family = platform
		}
	}
	if best != "" && family != "" {
		return family
	}
	if i := strings.Index(name, "-"); i > 0 {
		return name[:i]
	}
	return name
}

// Merge merges every result that carries an extract path. A failing item is
// recorded and the rest still run.
func (m *MergeCoordinator) Merge(ctx context.Context, results []FetchResult) MergeReport {
	logger := logx.OrNull(m.Logger)
	report := MergeReport{Items: []MergeItem{}}

	for _, res := range results {
		if res.ExtractPath == "" {
			continue
		}
		platform := m.Family(res.Name)
		if m.Merger == nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: no merge service configured", res.Name))
			continue
		}

		logger.Debug("merging toolchain", "toolchain", res.Name, "platform", platform, "path", res.ExtractPath)
		stats, err := m.Merger.MergeToolchain(ctx, platform, res.ExtractPath)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, companion.ErrNotRunning) {
				msg = "companion service not running"
			}
			logger.Warn("merge failed", "toolchain", res.Name, "platform", platform, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", res.Name, msg))
			continue
		}

		report.Items = append(report.Items, MergeItem{
			Name:     res.Name,
			Platform: platform,
			Path:     res.ExtractPath,
			Merged:   stats.Merged,
			Skipped:  stats.Skipped,
		})
		logger.Info("toolchain merged", "toolchain", res.Name, "platform", platform,
			"merged", stats.Merged, "skipped", stats.Skipped)
	}

	report.Success = len(report.Errors) == 0
	return report
}
