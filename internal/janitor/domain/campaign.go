package domain

import "time"

// BuildTargetClass tags the kind of build a campaign's runs produce, used by
// the publish subprocess to select a changer implementation.
type BuildTargetClass string

const (
	BuildTargetDebian  BuildTargetClass = "debian"
	BuildTargetGeneric BuildTargetClass = "generic"
)

// Campaign is a named, recurring class of changes applied uniformly across
// many codebases (e.g. "lintian-fixes").
type Campaign struct {
	Name             string
	CommandTemplate  string
	BuildTargetClass BuildTargetClass
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
