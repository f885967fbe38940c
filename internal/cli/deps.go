package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"openblock/internal/project"
)

func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Inspect project dependencies",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Classify declared dependencies and verify local paths exist",
		Args:  cobra.NoArgs,
		RunE:  runDepsCheck,
	})
	return cmd
}

type depsReport struct {
	Project string `json:"project"`
	project.Dependencies
	Errors []string `json:"errors,omitempty"`
}

func runDepsCheck(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, "deps", false)
	if err != nil {
		return err
	}
	defer s.Close()

	deps, err := project.Resolve(s.paths)
	if err != nil {
		return err
	}
	for _, w := range deps.Warnings {
		s.logger.Warn("dependency skipped", "detail", w)
	}

	problems := deps.Validate()
	report := depsReport{Project: s.paths.Root, Dependencies: deps}
	for _, p := range problems {
		report.Errors = append(report.Errors, p.Error())
	}

	if outputJSON {
		if err := writeJSON(cmd, report); err != nil {
			return err
		}
	} else {
		writeDepsTable(cmd.OutOrStdout(), report)
		for _, w := range deps.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
		}
	}

	if len(problems) > 0 {
		return errors.Join(problems...)
	}
	return nil
}

func writeDepsTable(out io.Writer, report depsReport) {
	fmt.Fprintf(out, "Project: %s\n", report.Project)

	type line struct{ kind, name, source string }
	var lines []line
	add := func(kind string, entries map[string]string) {
		for name, source := range entries {
			lines = append(lines, line{kind, name, source})
		}
	}
	add("library", report.LocalLibraries)
	add("toolchain", report.LocalToolchains)
	add("remote", report.RemoteToolchains)
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].kind != lines[j].kind {
			return lines[i].kind < lines[j].kind
		}
		return lines[i].name < lines[j].name
	})

	if len(lines) == 0 {
		fmt.Fprintln(out, "(no dependencies declared)")
		return
	}

	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tSOURCE")
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.kind, l.name, l.source)
	}
	w.Flush()

	for _, e := range report.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
}
