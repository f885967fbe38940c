package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// Validate checks addresses, timeouts and family mappings.
func (c Config) Validate() []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateURLs()...)
	results = append(results, c.validateTimeouts()...)
	results = append(results, c.validateFamilies()...)
	results = append(results, c.validateLogLevel()...)
	return results
}

// HasErrors reports whether any result is at error level.
func HasErrors(results []ValidationResult) bool {
	for _, r := range results {
		if r.Level == "error" {
			return true
		}
	}
	return false
}

func (c Config) validateURLs() []ValidationResult {
	var results []ValidationResult
	check := func(field, raw string, required bool) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			if required {
				results = append(results, ValidationResult{
					Level:   "error",
					Message: fmt.Sprintf("%s must be set", field),
				})
			}
			return
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			results = append(results, ValidationResult{
				Level:   "error",
				Message: fmt.Sprintf("%s %q is not an http(s) URL", field, raw),
			})
		}
	}
	check("service.address", c.Service.Address, true)
	check("registry.url", c.Registry.URL, false)
	return results
}

func (c Config) validateTimeouts() []ValidationResult {
	var results []ValidationResult
	if c.Service.TimeoutSec < 0 {
		results = append(results, ValidationResult{Level: "error", Message: "service.timeout_s must be positive"})
	}
	if c.Registry.TimeoutSec < 0 {
		results = append(results, ValidationResult{Level: "error", Message: "registry.timeout_s must be positive"})
	}
	if c.Index.TTLSec < 0 {
		results = append(results, ValidationResult{Level: "error", Message: "index.ttl_s must be positive"})
	}
	return results
}

func (c Config) validateFamilies() []ValidationResult {
	var results []ValidationResult
	prefixes := make([]string, 0, len(c.Toolchains.Families))
	for prefix := range c.Toolchains.Families {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		if strings.TrimSpace(prefix) == "" {
			results = append(results, ValidationResult{Level: "error", Message: "toolchains.families has an empty prefix"})
			continue
		}
		if strings.TrimSpace(c.Toolchains.Families[prefix]) == "" {
			results = append(results, ValidationResult{
				Level:   "warning",
				Message: fmt.Sprintf("toolchains.families[%q] maps to an empty platform", prefix),
			})
		}
	}
	return results
}

func (c Config) validateLogLevel() []ValidationResult {
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		return []ValidationResult{{
			Level:   "warning",
			Message: fmt.Sprintf("log.level %q is not recognised; using info", c.Log.Level),
		}}
	}
	return nil
}
