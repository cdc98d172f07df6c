package domain

// NamedPublishPolicy is a reusable, named resolution of publish mode per
// result-branch role, referenced by Candidate.PublishPolicy and defined in
// the policy configuration rather than stored per-candidate.
type NamedPublishPolicy struct {
	Name string
	// PerRole maps a BranchRole to the PublishMode a candidate using this
	// policy should use for that role, absent rate-limit/sensitive-host
	// downgrades.
	PerRole map[BranchRole]PublishMode
}

// ModeFor returns the configured mode for role, defaulting to
// PublishModeSkip if the policy does not mention the role.
func (p NamedPublishPolicy) ModeFor(role BranchRole) PublishMode {
	if mode, ok := p.PerRole[role]; ok {
		return mode
	}
	return PublishModeSkip
}
