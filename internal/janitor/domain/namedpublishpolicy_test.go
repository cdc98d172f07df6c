package domain

import "testing"

func TestNamedPublishPolicyModeFor(t *testing.T) {
	p := NamedPublishPolicy{
		Name: "debian-default",
		PerRole: map[BranchRole]PublishMode{
			BranchRoleMain:   PublishModePropose,
			BranchRoleDebian: PublishModePush,
		},
	}

	if got := p.ModeFor(BranchRoleMain); got != PublishModePropose {
		t.Fatalf("ModeFor(main) = %s, want propose", got)
	}
	if got := p.ModeFor(BranchRoleDebian); got != PublishModePush {
		t.Fatalf("ModeFor(debian) = %s, want push", got)
	}
	if got := p.ModeFor(BranchRoleUpstream); got != PublishModeSkip {
		t.Fatalf("ModeFor(upstream) = %s, want skip (unmentioned role defaults to skip)", got)
	}
}
