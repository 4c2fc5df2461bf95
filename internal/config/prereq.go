package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// bkConfig is the subset of the bk CLI's ~/.config/bk.yaml we inspect.
type bkConfig struct {
	SelectedOrg   string `yaml:"selected_org"`
	Organizations map[string]struct {
		APIToken string `yaml:"api_token"`
	} `yaml:"organizations"`
}

// ghHosts is the gh CLI's ~/.config/gh/hosts.yml keyed by host.
type ghHosts map[string]struct {
	User       string `yaml:"user"`
	OAuthToken string `yaml:"oauth_token"`
}

// QuickCheck inspects the gh and bk CLI configs under home without running
// either tool. It returns human-readable warnings; an empty slice means
// nothing looked wrong.
func (c *Config) QuickCheck(home string) []string {
	var warnings []string

	if err := c.Validate(); err != nil {
		warnings = append(warnings, fmt.Sprintf("%s is not set; run `cifail configure` or export it", EnvToken))
	}

	warnings = append(warnings, checkGH(filepath.Join(home, ".config", "gh", "hosts.yml"))...)
	warnings = append(warnings, checkBK(filepath.Join(home, ".config", "bk.yaml"), c.Buildkite.Org)...)
	return warnings
}

func checkGH(path string) []string {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{"gh is not authenticated; run `gh auth login`"}
	}
	if err != nil {
		return []string{fmt.Sprintf("could not read %s: %v", path, err)}
	}

	var hosts ghHosts
	if err := yaml.Unmarshal(data, &hosts); err != nil {
		return []string{fmt.Sprintf("could not parse %s: %v", path, err)}
	}
	if _, ok := hosts["github.com"]; !ok {
		return []string{"gh has no github.com login; run `gh auth login`"}
	}
	return nil
}

func checkBK(path, org string) []string {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{"bk is not configured; run `cifail configure`"}
	}
	if err != nil {
		return []string{fmt.Sprintf("could not read %s: %v", path, err)}
	}

	var cfg bkConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return []string{fmt.Sprintf("could not parse %s: %v", path, err)}
	}

	var warnings []string
	if cfg.SelectedOrg == "" {
		warnings = append(warnings, "bk has no selected organization; run `bk use <org>`")
	}
	if org != "" && cfg.SelectedOrg != "" && cfg.SelectedOrg != org {
		warnings = append(warnings, fmt.Sprintf("bk is using organization %q but cifail is configured for %q", cfg.SelectedOrg, org))
	}
	if cfg.SelectedOrg != "" {
		if o, ok := cfg.Organizations[cfg.SelectedOrg]; !ok || o.APIToken == "" {
			warnings = append(warnings, fmt.Sprintf("bk has no API token for organization %q", cfg.SelectedOrg))
		}
	}
	return warnings
}
