package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

// TestResolveRuleOverride is scenario S3: a later matching rule overwrites
// an earlier one's mode.
func TestResolveRuleOverride(t *testing.T) {
	cfg := &Config{
		Rules: []Rule{
			{Match: Match{Maintainer: []string{"alice@example.com"}}, Payload: Payload{Mode: domain.PublishModePropose}},
			{Match: Match{Name: []string{"foo"}}, Payload: Payload{Mode: domain.PublishModePush}},
		},
	}

	got := cfg.Resolve(domain.Codebase{Name: "foo", Maintainer: "alice@example.com"})
	if got.Mode != domain.PublishModePush {
		t.Fatalf("Resolve().Mode = %s, want push (later rule wins)", got.Mode)
	}
}

func TestResolveDefaults(t *testing.T) {
	cfg := &Config{}
	got := cfg.Resolve(domain.Codebase{Name: "anything"})
	if got.Mode != domain.PublishModeSkip {
		t.Fatalf("default Mode = %s, want skip", got.Mode)
	}
	if got.Changelog != ChangelogAuto {
		t.Fatalf("default Changelog = %s, want auto", got.Changelog)
	}
	if got.Committer != "" {
		t.Fatalf("default Committer = %q, want unset", got.Committer)
	}
}

func TestResolveEmptyMatchListMatchesEverything(t *testing.T) {
	cfg := &Config{Rules: []Rule{{Payload: Payload{Mode: domain.PublishModeAttemptPush}}}}

	for _, cb := range []domain.Codebase{{Name: "a"}, {Name: "b", Maintainer: "anyone"}} {
		if got := cfg.Resolve(cb).Mode; got != domain.PublishModeAttemptPush {
			t.Fatalf("Resolve(%+v).Mode = %s, want attempt-push (empty match list matches everything)", cb, got)
		}
	}
}

func TestResolveNonMatchingRuleLeavesEarlierValue(t *testing.T) {
	cfg := &Config{
		Rules: []Rule{
			{Payload: Payload{Mode: domain.PublishModePropose}},
			{Match: Match{Name: []string{"does-not-exist"}}, Payload: Payload{Mode: domain.PublishModePush}},
		},
	}
	got := cfg.Resolve(domain.Codebase{Name: "some-codebase"})
	if got.Mode != domain.PublishModePropose {
		t.Fatalf("Resolve().Mode = %s, want propose (second rule doesn't match, shouldn't overwrite)", got.Mode)
	}
}

func TestResolvePerRoleOverridesModeFor(t *testing.T) {
	cfg := &Config{
		Rules: []Rule{{Payload: Payload{
			Mode: domain.PublishModePropose,
			PerRole: map[domain.BranchRole]domain.PublishMode{
				domain.BranchRoleDebian: domain.PublishModePush,
			},
		}}},
	}
	res := cfg.Resolve(domain.Codebase{Name: "cb"})

	if got := res.ModeFor(domain.BranchRoleMain); got != domain.PublishModePropose {
		t.Fatalf("ModeFor(main) = %s, want propose (falls back to Mode)", got)
	}
	if got := res.ModeFor(domain.BranchRoleDebian); got != domain.PublishModePush {
		t.Fatalf("ModeFor(debian) = %s, want push (per-role override)", got)
	}
}

func TestIsSensitiveHost(t *testing.T) {
	cfg := Default()

	if !cfg.IsSensitiveHost("https://salsa.debian.org/debian/some-package") {
		t.Fatalf("IsSensitiveHost should match the default salsa.debian.org/debian/ substring")
	}
	if cfg.IsSensitiveHost("https://github.com/some/repo") {
		t.Fatalf("IsSensitiveHost should not match an unrelated host")
	}
}

func TestLoadFillsInDefaultSensitiveHosts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, writeFile(path, `
rules:
  - match:
      maintainer: ["alice@example.com"]
    payload:
      mode: propose
      changelog: update
      committer: "Alice <alice@example.com>"
`))

	cfg, err := Load(path)
	require.NoError(t, err, "Load should parse a well-formed policy document")
	require.Equal(t, DefaultSensitiveHostSubstrings, cfg.SensitiveHostSubstrings,
		"an unset sensitive_host_substrings list should fall back to the default")
	require.Len(t, cfg.Rules, 1)

	res := cfg.Resolve(domain.Codebase{Name: "foo", Maintainer: "alice@example.com"})
	require.Equal(t, domain.PublishModePropose, res.Mode)
	require.Equal(t, ChangelogUpdate, res.Changelog)
	require.Equal(t, "Alice <alice@example.com>", res.Committer)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestMatchRequiresAllNonEmptyLists(t *testing.T) {
	m := Match{Maintainer: []string{"alice@example.com"}, Name: []string{"foo"}}
	cb := domain.Codebase{Name: "foo", Maintainer: "bob@example.com"}

	if m.matches(cb) {
		t.Fatalf("match should fail when one of several non-empty criteria doesn't match")
	}
}

// TestMatchUploader checks the third of spec §4.4's three match
// alternatives: a rule naming uploaders matches a codebase whose Uploader
// list contains any of them, and rejects one that doesn't.
func TestMatchUploader(t *testing.T) {
	m := Match{Uploader: []string{"carol@example.com"}}

	if !m.matches(domain.Codebase{Name: "foo", Uploader: []string{"bob@example.com", "carol@example.com"}}) {
		t.Fatalf("match should succeed when one of the codebase's uploaders is in the list")
	}
	if m.matches(domain.Codebase{Name: "foo", Uploader: []string{"bob@example.com"}}) {
		t.Fatalf("match should fail when none of the codebase's uploaders is in the list")
	}
	if m.matches(domain.Codebase{Name: "foo"}) {
		t.Fatalf("match should fail against a codebase with no recorded uploaders")
	}
}
