package repository

import (
	"fmt"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
)

const (
	missingAttributeTemplateConstant = "%s does not specify %s"
	specStringTemplateConstant       = "%s git_dir=%s origin=%s upstream=%s"
	gitDirAttributeConstant          = "a git_dir"
	originAttributeConstant          = "an origin"
	upstreamAttributeConstant        = "an upstream"
)

// Spec locates a repository locally and remotely. Name is its identity.
type Spec struct {
	Name     string
	GitDir   string
	Origin   string
	Upstream string
	CommitID string
	Branch   string
}

// RequireGitDir returns GitDir or a ConfigError when it is unset.
func (spec Spec) RequireGitDir() (string, error) {
	return spec.require(spec.GitDir, gitDirAttributeConstant)
}

// RequireOrigin returns Origin or a ConfigError when it is unset.
func (spec Spec) RequireOrigin() (string, error) {
	return spec.require(spec.Origin, originAttributeConstant)
}

// RequireUpstream returns Upstream or a ConfigError when it is unset.
func (spec Spec) RequireUpstream() (string, error) {
	return spec.require(spec.Upstream, upstreamAttributeConstant)
}

// String renders the spec for logs.
func (spec Spec) String() string {
	return fmt.Sprintf(specStringTemplateConstant, spec.Name, spec.GitDir, spec.Origin, spec.Upstream)
}

func (spec Spec) require(value string, attribute string) (string, error) {
	if len(value) == 0 {
		return "", buildtoolerrors.NewConfigError(fmt.Sprintf(missingAttributeTemplateConstant, spec.Name, attribute), nil)
	}
	return value, nil
}

// SourceInfo pairs a build number with the summary the build was made from.
type SourceInfo struct {
	BuildNumber string            `yaml:"build_number"`
	Summary     RepositorySummary `yaml:"summary"`
}

// BuildVersion is the version a build of this source is published under.
func (info SourceInfo) BuildVersion() string {
	return info.Summary.Version
}
