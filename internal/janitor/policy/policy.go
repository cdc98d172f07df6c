// Package policy resolves the per-codebase publish policy (mode, changelog
// handling, committer identity) from an ordered list of YAML rule blocks.
// Grounded on infrastructure/config/services.go's yaml.v3 load pattern.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// ChangelogMode controls how a run's debian/changelog entry is handled.
type ChangelogMode string

const (
	ChangelogAuto   ChangelogMode = "auto"
	ChangelogUpdate ChangelogMode = "update"
	ChangelogLeave  ChangelogMode = "leave"
)

// Match narrows which codebases a Rule applies to. Each non-empty list is an
// alternative; at least one entry in each non-empty list must match. Empty
// lists match everything.
type Match struct {
	Maintainer []string `yaml:"maintainer"`
	Uploader   []string `yaml:"uploader"`
	Name       []string `yaml:"name"`
}

func (m Match) matches(cb domain.Codebase) bool {
	if len(m.Maintainer) > 0 && !contains(m.Maintainer, cb.Maintainer) {
		return false
	}
	if len(m.Name) > 0 && !contains(m.Name, cb.Name) {
		return false
	}
	if len(m.Uploader) > 0 && !containsAny(m.Uploader, cb.Uploader) {
		return false
	}
	return true
}

// containsAny reports whether any of candidates appears in list.
func containsAny(list, candidates []string) bool {
	for _, c := range candidates {
		if contains(list, c) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Rule is one block in the ordered policy list: a Match plus the fields it
// overwrites when it applies. Zero-value fields in Payload mean "don't
// override" rather than "set to empty".
type Rule struct {
	Match   Match   `yaml:"match"`
	Payload Payload `yaml:"payload"`
}

// Payload is the set of overridable outcome fields, plus the per-branch-role
// mode vector described in spec §4.4.
type Payload struct {
	Mode      domain.PublishMode `yaml:"mode"`
	Changelog ChangelogMode      `yaml:"changelog"`
	Committer string             `yaml:"committer"`
	// PerRole overrides Mode for specific result-branch roles, e.g. letting
	// the main branch stay "propose" while a debian/patches branch pushes
	// directly.
	PerRole map[domain.BranchRole]domain.PublishMode `yaml:"per_role"`
}

// Resolution is the resolved policy triple for one codebase.
type Resolution struct {
	Mode      domain.PublishMode
	Changelog ChangelogMode
	Committer string
	PerRole   map[domain.BranchRole]domain.PublishMode
}

// ModeFor returns the resolved mode for a specific result-branch role,
// falling back to Mode when the role has no override.
func (r Resolution) ModeFor(role domain.BranchRole) domain.PublishMode {
	if mode, ok := r.PerRole[role]; ok {
		return mode
	}
	return r.Mode
}

// Config is the top-level policy document: an ordered rule list plus the
// hoster sensitivity list from Open Question 1.
type Config struct {
	Rules                   []Rule   `yaml:"rules"`
	SensitiveHostSubstrings []string `yaml:"sensitive_host_substrings"`
}

// DefaultSensitiveHostSubstrings matches the hoster the original project
// treats as requiring manual review before any push.
var DefaultSensitiveHostSubstrings = []string{"salsa.debian.org/debian/"}

// Load reads and parses a policy document from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if len(cfg.SensitiveHostSubstrings) == 0 {
		cfg.SensitiveHostSubstrings = DefaultSensitiveHostSubstrings
	}
	return &cfg, nil
}

// Default returns an empty policy (every codebase resolves to mode=skip)
// with the default sensitive-host list, for use when no policy file is
// configured.
func Default() *Config {
	return &Config{SensitiveHostSubstrings: DefaultSensitiveHostSubstrings}
}

// Resolve iterates the rule list in order; each matching rule's non-empty
// fields overwrite earlier values. The default mode is skip, default
// changelog is auto, default committer is unset.
func (c *Config) Resolve(cb domain.Codebase) Resolution {
	res := Resolution{
		Mode:      domain.PublishModeSkip,
		Changelog: ChangelogAuto,
		PerRole:   map[domain.BranchRole]domain.PublishMode{},
	}
	for _, rule := range c.Rules {
		if !rule.Match.matches(cb) {
			continue
		}
		if rule.Payload.Mode != "" {
			res.Mode = rule.Payload.Mode
		}
		if rule.Payload.Changelog != "" {
			res.Changelog = rule.Payload.Changelog
		}
		if rule.Payload.Committer != "" {
			res.Committer = rule.Payload.Committer
		}
		for role, mode := range rule.Payload.PerRole {
			res.PerRole[role] = mode
		}
	}
	return res
}

// IsSensitiveHost reports whether vcsURL names a hoster this policy treats
// as requiring manual review before any automated push.
func (c *Config) IsSensitiveHost(vcsURL string) bool {
	for _, substr := range c.SensitiveHostSubstrings {
		if substr != "" && strings.Contains(vcsURL, substr) {
			return true
		}
	}
	return false
}
