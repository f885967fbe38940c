package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"openblock/internal/index"
	"openblock/internal/project"
	"openblock/internal/toolchain"
	"openblock/internal/tui"
)

var (
	fetchForce      bool
	fetchNoMerge    bool
	fetchNoProgress bool
	fetchRegistry   string
	listRegistry    string
)

// fetchTimeout bounds a whole fetch batch.
const fetchTimeout = 30 * time.Minute

func newToolchainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolchain",
		Short: "Fetch and inspect toolchains",
	}
	cmd.AddCommand(newToolchainFetchCmd())
	cmd.AddCommand(newToolchainListCmd())
	return cmd
}

func newToolchainFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [name...]",
		Short: "Download, verify and extract toolchains (defaults to the project's remote toolchains)",
		RunE:  runToolchainFetch,
	}
	cmd.Flags().BoolVar(&fetchForce, "force", false, "Refetch even if already extracted or cached")
	cmd.Flags().BoolVar(&fetchNoMerge, "no-merge", false, "Skip merging into the companion service's unified tree")
	cmd.Flags().BoolVar(&fetchNoProgress, "no-progress", false, "Disable interactive progress output")
	cmd.Flags().StringVar(&fetchRegistry, "registry", "", "Fetch the packages index from this registry URL instead of the companion service")
	return cmd
}

type fetchOutput struct {
	Project string                 `json:"project"`
	Fetch   toolchain.BatchResult  `json:"fetch"`
	Merge   *toolchain.MergeReport `json:"merge,omitempty"`
}

func runToolchainFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	s, err := openSession(cmd, "fetch", true)
	if err != nil {
		return err
	}
	defer s.Close()

	names := args
	if len(names) == 0 {
		deps, err := project.Resolve(s.paths)
		if err != nil {
			return err
		}
		for _, w := range deps.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
		}
		names = deps.RemoteNames()
	}
	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No remote toolchains to fetch.")
		return nil
	}

	if err := s.paths.EnsureMetaDirs(); err != nil {
		return err
	}

	fetcher := toolchain.NewFetcher(s.paths, s.index, s.companion, s.logger)
	opts := toolchain.FetchOptions{RegistryURL: s.registryURL(fetchRegistry), Force: fetchForce}
	s.logger.Info("fetching toolchains", "names", names, "registry", opts.RegistryURL, "force", opts.Force)

	var batch toolchain.BatchResult
	mode := tui.DetectMode(cmd.OutOrStdout(), fetchNoProgress, outputJSON)
	if mode == tui.ModeTUI {
		batch, err = fetchWithProgress(ctx, cmd.OutOrStdout(), fetcher, names, opts)
		if err != nil {
			return err
		}
	} else {
		batch = fetcher.FetchAll(ctx, names, opts)
	}

	out := fetchOutput{Project: s.paths.Root, Fetch: batch}
	if !fetchNoMerge {
		coordinator := &toolchain.MergeCoordinator{
			Merger:   s.companion,
			Families: s.cfg.Toolchains.Families,
			Logger:   s.logger.Named("merge"),
		}
		report := coordinator.Merge(ctx, batch.Results)
		out.Merge = &report
	}

	if outputJSON {
		if err := writeJSON(cmd, out); err != nil {
			return err
		}
	} else {
		writeFetchTable(cmd.OutOrStdout(), out)
	}

	var errs []error
	for _, res := range batch.Results {
		if !res.Success {
			errs = append(errs, fmt.Errorf("%s: %s", res.Name, res.Error))
		}
	}
	if out.Merge != nil {
		for _, e := range out.Merge.Errors {
			errs = append(errs, fmt.Errorf("merge %s", e))
		}
	}
	return errors.Join(errs...)
}

func fetchWithProgress(ctx context.Context, out io.Writer, fetcher *toolchain.Fetcher, names []string, opts toolchain.FetchOptions) (toolchain.BatchResult, error) {
	model := tui.NewProgressModel("Fetching toolchains", tui.FetchColumns())
	for _, name := range names {
		model.AddRow(name, tui.PendingRow(name))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var batch toolchain.BatchResult
	finished := make(chan struct{})
	err := tui.RunWithWork(out, model, func(send func(tea.Msg)) {
		defer close(finished)
		events := make(chan toolchain.Event, 64)
		fetcher.Events = events

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			tui.ForwardEvents(events, send)
		}()

		batch = fetcher.FetchAll(ctx, names, opts)
		fetcher.Events = nil
		close(events)
		wg.Wait()
	})
	// A user quit ends the program early; stop the batch and wait for it.
	cancel()
	<-finished
	return batch, err
}

func writeFetchTable(out io.Writer, res fetchOutput) {
	fmt.Fprintf(out, "Project: %s\n", res.Project)

	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "TOOLCHAIN\tSTATUS\tVERSION\tPATH\tERROR")
	for _, r := range res.Fetch.Results {
		status := "fetched"
		switch {
		case !r.Success:
			status = "error"
		case r.Skipped && r.ExtractPath == "":
			status = "cached"
		case r.Skipped:
			status = "skipped"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name, status,
			tui.NonEmptyOrDash(r.Version), tui.NonEmptyOrDash(r.ExtractPath), tui.NonEmptyOrDash(r.Error))
	}
	w.Flush()

	if res.Merge == nil {
		return
	}
	if len(res.Merge.Items) > 0 {
		fmt.Fprintln(out)
		mw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		fmt.Fprintln(mw, "MERGED\tPLATFORM\tFILES\tUNCHANGED")
		for _, item := range res.Merge.Items {
			fmt.Fprintf(mw, "%s\t%s\t%d\t%d\n", item.Name, item.Platform, item.Merged, item.Skipped)
		}
		mw.Flush()
	}
	for _, e := range res.Merge.Errors {
		fmt.Fprintf(out, "  merge error: %s\n", e)
	}
}

func newToolchainListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List toolchains in the packages index with host support and install state",
		Args:  cobra.NoArgs,
		RunE:  runToolchainList,
	}
	cmd.Flags().StringVar(&listRegistry, "registry", "", "Read the packages index from this registry URL")
	return cmd
}

type toolchainListing struct {
	Name      string `json:"name"`
	Latest    string `json:"latest,omitempty"`
	Supported bool   `json:"supported"`
	Source    string `json:"source,omitempty"`
	Installed string `json:"installed,omitempty"`
}

func runToolchainList(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, "list", false)
	if err != nil {
		return err
	}
	defer s.Close()

	idx := s.index.Get(cmd.Context(), index.Options{RegistryURL: s.registryURL(listRegistry)})
	fetcher := toolchain.NewFetcher(s.paths, nil, nil, s.logger)
	manifest, err := toolchain.LoadManifest(fetcher.ManifestPath)
	if err != nil {
		s.logger.Warn("toolchain manifest unreadable", "error", err)
		manifest = toolchain.Manifest{}
	}

	listings := listToolchains(idx, manifest, fetcher.Host, fetcher.Platform)
	if outputJSON {
		return writeJSON(cmd, listings)
	}

	if len(listings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "(no toolchains in packages index)")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "TOOLCHAIN\tLATEST\t%s\tINSTALLED\n", fetcher.Host)
	for _, l := range listings {
		supported := "no"
		if l.Supported {
			supported = "yes (" + l.Source + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Name, tui.NonEmptyOrDash(l.Latest), supported, tui.NonEmptyOrDash(l.Installed))
	}
	return w.Flush()
}

func listToolchains(idx *index.PackagesIndex, manifest toolchain.Manifest, host, platform string) []toolchainListing {
	listings := make([]toolchainListing, 0, len(idx.Toolchains))
	for _, pkg := range idx.Toolchains {
		l := toolchainListing{Name: pkg.Key()}
		if latest, ok := pkg.Latest(); ok {
			l.Latest = latest.Version
			if art, err := toolchain.ResolveArtifact(latest, host, platform); err == nil {
				l.Supported = true
				l.Source = art.Source
			}
		}
		if entry, ok := manifest.Entries[l.Name]; ok {
			l.Installed = entry.Version
		}
		listings = append(listings, l)
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].Name < listings[j].Name })
	return listings
}
