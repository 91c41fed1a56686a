// Package versions maintains versions.yml, the list of supported releases halyard installs from.
//
// The document keeps at most MaximumReleaseCount releases, one per release line,
// newest first. Every version field must be a strict semantic version.
package versions
