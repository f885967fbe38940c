package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"openblock/internal/index"
)

var (
	indexRefresh  bool
	indexRegistry string
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the packages index",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Summarise the packages index and where it came from",
		Args:  cobra.NoArgs,
		RunE:  runIndexShow,
	}
	show.Flags().BoolVar(&indexRefresh, "refresh", false, "Bypass the in-memory cache")
	show.Flags().StringVar(&indexRegistry, "registry", "", "Read the packages index from this registry URL")
	cmd.AddCommand(show)
	return cmd
}

type indexSummary struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetchedAt,omitempty"`
	Available  bool      `json:"available"`
	Devices    int       `json:"devices"`
	Extensions int       `json:"extensions"`
	Libraries  int       `json:"libraries"`
	Toolchains int       `json:"toolchains"`
}

func runIndexShow(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, "index", false)
	if err != nil {
		return err
	}
	defer s.Close()

	idx := s.index.Get(cmd.Context(), index.Options{
		RegistryURL:  s.registryURL(indexRegistry),
		ForceRefresh: indexRefresh,
	})
	summary := summariseIndex(idx, s.index.Cache)

	if outputJSON {
		return writeJSON(cmd, summary)
	}

	out := cmd.OutOrStdout()
	if !summary.Available {
		fmt.Fprintln(out, "Packages index unavailable (companion service and registry did not answer).")
		return nil
	}
	fmt.Fprintf(out, "Source:     %s\n", summary.Source)
	fmt.Fprintf(out, "Fetched:    %s\n", summary.FetchedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Devices:    %d\n", summary.Devices)
	fmt.Fprintf(out, "Extensions: %d\n", summary.Extensions)
	fmt.Fprintf(out, "Libraries:  %d\n", summary.Libraries)
	fmt.Fprintf(out, "Toolchains: %d\n", summary.Toolchains)
	return nil
}

func summariseIndex(idx *index.PackagesIndex, cache *index.Cache) indexSummary {
	summary := indexSummary{
		Devices:    len(idx.Devices),
		Extensions: len(idx.Extensions),
		Libraries:  len(idx.Libraries),
		Toolchains: len(idx.Toolchains),
	}
	// Only successful fetches are cached, so a cache entry means a source answered.
	if source, at, ok := cache.Source(); ok {
		summary.Source = source
		summary.FetchedAt = at
		summary.Available = true
	}
	return summary
}
