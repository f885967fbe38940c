package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"openblock/internal/companion"
	"openblock/internal/config"
	"openblock/internal/index"
	"openblock/internal/logx"
	"openblock/internal/paths"
)

// session bundles what every command needs: the project layout, settings,
// a logger and the clients built from them.
type session struct {
	paths     paths.ProjectPaths
	cfg       config.Config
	logger    hclog.Logger
	companion *companion.Client
	index     *index.Client

	closer io.Closer
}

// openSession loads settings for the project. The per-run log file is only
// created inside a project with a package.json, or when the command writes
// project state anyway.
func openSession(cmd *cobra.Command, name string, writesState bool) (*session, error) {
	pp, err := paths.Resolve(projectDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(pp.ConfigFile)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(logLevel) != "" {
		cfg.Log.Level = logLevel
	}
	for _, r := range cfg.Validate() {
		if r.Level == "error" {
			return nil, fmt.Errorf("invalid config %s: %s", pp.ConfigFile, r.Message)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", r.Message)
	}

	s := &session{paths: pp, cfg: cfg}

	logger := hclog.NewNullLogger()
	inProject, _ := paths.FileExists(pp.ManifestFile)
	if writesState || inProject {
		fileLogger, closer, err := logx.New(pp, cfg.Log.Level)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: file logging disabled: %v\n", err)
		} else {
			logger = fileLogger
			s.closer = closer
		}
	}
	s.logger = logger.Named(name)
	s.logger.Debug("session opened", "project", pp.Root, "service", cfg.Service.Address)

	s.companion = companion.New(cfg.Service.Address, cfg.ServiceTimeout())
	s.index = index.NewClient(s.companion, index.NewCache(cfg.IndexTTL()), s.logger)
	s.index.HTTP.Timeout = cfg.RegistryTimeout()
	return s, nil
}

func (s *session) Close() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

// registryURL prefers the flag value over config and environment.
func (s *session) registryURL(flag string) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	return s.cfg.Registry.URL
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
