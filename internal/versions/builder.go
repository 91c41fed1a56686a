package versions

import (
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
)

const (
	// MaximumReleaseCount is the number of releases versions.yml keeps.
	MaximumReleaseCount = 3

	releaseAliasTemplateConstant      = "v%s"
	changelogURLTemplateConstant      = "%s/%s-changelog/"
	duplicateVersionTemplateConstant  = "Spinnaker version already exists in versions.yml: %s"
	supersededVersionTemplateConstant = "Spinnaker version %s superseded by newer patch version: %s"
	invalidReleaseTemplateConstant    = "Spinnaker version %q is not a semantic version"
	replacingReleaseMessageConstant   = "replacing release"
	addingReleaseMessageConstant      = "adding release"
	logFieldExistingConstant          = "existing"
	logFieldVersionConstant           = "version"
)

// BuilderOptions configure a Builder.
type BuilderOptions struct {
	// ChangelogBaseURL prefixes the changelog link of new releases.
	ChangelogBaseURL string
	Clock            func() time.Time
}

// Builder adds a release to a versions document.
type Builder struct {
	logger  *zap.Logger
	base    *Document
	options BuilderOptions
}

// NewBuilder constructs a Builder over base. A nil base starts from NewDocument.
func NewBuilder(logger *zap.Logger, base *Document, options BuilderOptions) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if base == nil {
		base = NewDocument()
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}
	return &Builder{logger: logger, base: base, options: options}
}

// NewRelease describes spinnakerVersion as published now.
func (builder *Builder) NewRelease(spinnakerVersion string, minimumHalyardVersion string) Release {
	return Release{
		Alias:                 fmt.Sprintf(releaseAliasTemplateConstant, spinnakerVersion),
		Changelog:             fmt.Sprintf(changelogURLTemplateConstant, builder.options.ChangelogBaseURL, spinnakerVersion),
		LastUpdate:            builder.options.Clock().UnixMilli(),
		MinimumHalyardVersion: minimumHalyardVersion,
		Version:               spinnakerVersion,
	}
}

// Build returns a copy of the base document with spinnakerVersion added.
// latestHalyardVersion replaces latestHalyard only when it is not empty.
// The result is validated before it is returned.
func (builder *Builder) Build(spinnakerVersion string, minimumHalyardVersion string, latestHalyardVersion string) (*Document, error) {
	release := builder.NewRelease(spinnakerVersion, minimumHalyardVersion)
	document := builder.base.Clone()

	releases, addError := AddOrReplaceRelease(builder.logger, release, document.Versions)
	if addError != nil {
		return nil, addError
	}
	sortError := SortReleases(releases)
	if sortError != nil {
		return nil, sortError
	}
	if len(releases) > MaximumReleaseCount {
		releases = releases[:MaximumReleaseCount]
	}

	document.Versions = releases
	document.LatestSpinnaker = releases[0].Version
	if len(latestHalyardVersion) > 0 {
		document.LatestHalyard = latestHalyardVersion
	}
	if validationError := document.Validate(); validationError != nil {
		return nil, validationError
	}
	return document, nil
}

// AddOrReplaceRelease adds release to releases. A release on the same major.minor
// line is replaced when release has the higher patch; an equal or lower patch is an error.
// releases is not modified.
func AddOrReplaceRelease(logger *zap.Logger, release Release, releases []Release) ([]Release, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	newVersion, parseError := semver.StrictNewVersion(release.Version)
	if parseError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(invalidReleaseTemplateConstant, release.Version), parseError)
	}

	updated := append([]Release{}, releases...)
	replaced := false
	for index, existing := range updated {
		existingVersion, existingError := semver.StrictNewVersion(existing.Version)
		if existingError != nil {
			return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(invalidReleaseTemplateConstant, existing.Version), existingError)
		}
		if existingVersion.Major() != newVersion.Major() || existingVersion.Minor() != newVersion.Minor() {
			continue
		}
		switch {
		case newVersion.Patch() == existingVersion.Patch():
			return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(duplicateVersionTemplateConstant, release.Version), nil)
		case newVersion.Patch() < existingVersion.Patch():
			return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(supersededVersionTemplateConstant, release.Version, existing.Version), nil)
		}
		logger.Info(replacingReleaseMessageConstant, zap.String(logFieldExistingConstant, existing.Version), zap.String(logFieldVersionConstant, release.Version))
		updated[index] = release
		replaced = true
	}

	if !replaced {
		logger.Info(addingReleaseMessageConstant, zap.String(logFieldVersionConstant, release.Version))
		updated = append(updated, release)
	}
	return updated, nil
}

// SortReleases orders releases newest first by semantic version.
func SortReleases(releases []Release) error {
	parsed := make(map[string]*semver.Version, len(releases))
	for _, release := range releases {
		version, parseError := semver.StrictNewVersion(release.Version)
		if parseError != nil {
			return buildtoolerrors.NewConfigError(fmt.Sprintf(invalidReleaseTemplateConstant, release.Version), parseError)
		}
		parsed[release.Version] = version
	}
	sort.SliceStable(releases, func(left int, right int) bool {
		return parsed[releases[left].Version].GreaterThan(parsed[releases[right].Version])
	})
	return nil
}
