package domain

import "time"

// VCSKind identifies the version control system backing a Codebase.
type VCSKind string

const (
	VCSGit  VCSKind = "git"
	VCSBzr  VCSKind = "bzr"
	VCSSvn  VCSKind = "svn"
	VCSHg   VCSKind = "hg"
	VCSNone VCSKind = ""
)

// Codebase is a single source-code repository under fleet management.
// Identity is stable; deletion is soft via Removed.
type Codebase struct {
	Name       string
	VCSURL     string
	VCSKind    VCSKind
	Value      float64
	Maintainer string
	// Uploader lists the package's additional uploaders (as distinct from
	// its single Maintainer), e.g. Debian's Uploaders: control field.
	Uploader  []string
	Removed   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
