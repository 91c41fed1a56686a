package semver

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

const (
	// DefaultTagPrefix is the prefix used for release tags in source repositories.
	DefaultTagPrefix = "version-"

	versionTemplateConstant              = "%d.%d.%d"
	releaseBranchTemplateConstant        = "release-%d.%d.x"
	parseErrorTemplateConstant           = "malformed semantic version tag %q"
	invalidIndexErrorTemplateConstant    = "invalid semantic version component index %d"
	semanticVersionPatternConstant       = `^(.*?)(\d+)\.(\d+)\.(\d+)$`
	semanticVersionSubmatchCountConstant = 5
)

// ComponentIndex identifies a component of a SemanticVersion, most significant first.
type ComponentIndex int

// Component indexes ordered from most to least significant.
const (
	PrefixIndex ComponentIndex = iota
	MajorIndex
	MinorIndex
	PatchIndex
)

// String returns the conventional upper-case label for the component.
func (index ComponentIndex) String() string {
	switch index {
	case PrefixIndex:
		return "PREFIX"
	case MajorIndex:
		return "MAJOR"
	case MinorIndex:
		return "MINOR"
	case PatchIndex:
		return "PATCH"
	default:
		return strconv.Itoa(int(index))
	}
}

var semanticVersionPattern = regexp.MustCompile(semanticVersionPatternConstant)

// ParseError reports a tag that does not look like prefix + major.minor.patch.
type ParseError struct {
	Tag string
}

// Error describes the malformed tag.
func (parseError ParseError) Error() string {
	return fmt.Sprintf(parseErrorTemplateConstant, parseError.Tag)
}

// InvalidIndexError reports a component index that cannot be incremented.
type InvalidIndexError struct {
	Index ComponentIndex
}

// Error describes the invalid index.
func (indexError InvalidIndexError) Error() string {
	return fmt.Sprintf(invalidIndexErrorTemplateConstant, int(indexError.Index))
}

// SemanticVersion is a release tag split into its prefix and numeric components.
type SemanticVersion struct {
	Prefix string
	Major  int
	Minor  int
	Patch  int
}

// Make parses a tag such as "version-1.2.3" or "v1.2.3".
func Make(tag string) (SemanticVersion, error) {
	matches := semanticVersionPattern.FindStringSubmatch(tag)
	if len(matches) != semanticVersionSubmatchCountConstant {
		return SemanticVersion{}, ParseError{Tag: tag}
	}

	components := make([]int, 0, 3)
	for _, digits := range matches[2:] {
		value, conversionError := strconv.Atoi(digits)
		if conversionError != nil {
			return SemanticVersion{}, ParseError{Tag: tag}
		}
		components = append(components, value)
	}

	return SemanticVersion{Prefix: matches[1], Major: components[0], Minor: components[1], Patch: components[2]}, nil
}

// MustMake parses a tag and panics when it is malformed. Intended for constants.
func MustMake(tag string) SemanticVersion {
	version, parseError := Make(tag)
	if parseError != nil {
		panic(parseError)
	}
	return version
}

// ToVersion renders the numeric part, e.g. "1.2.3".
func (version SemanticVersion) ToVersion() string {
	return fmt.Sprintf(versionTemplateConstant, version.Major, version.Minor, version.Patch)
}

// ToTag renders the full tag including its prefix.
func (version SemanticVersion) ToTag() string {
	return version.Prefix + version.ToVersion()
}

// ToReleaseBranch renders the release branch name for the version's major.minor line.
func (version SemanticVersion) ToReleaseBranch() string {
	return fmt.Sprintf(releaseBranchTemplateConstant, version.Major, version.Minor)
}

// String implements fmt.Stringer.
func (version SemanticVersion) String() string {
	return version.ToTag()
}

// Compare orders versions by major, minor, then patch. The prefix does not participate.
func (version SemanticVersion) Compare(other SemanticVersion) int {
	switch {
	case version.Major != other.Major:
		return compareIntegers(version.Major, other.Major)
	case version.Minor != other.Minor:
		return compareIntegers(version.Minor, other.Minor)
	default:
		return compareIntegers(version.Patch, other.Patch)
	}
}

// Less reports whether version sorts before other.
func (version SemanticVersion) Less(other SemanticVersion) bool {
	return version.Compare(other) < 0
}

// MostSignificantDiffIndex returns the first component that differs, most significant first.
// The boolean is false when the versions are identical.
func (version SemanticVersion) MostSignificantDiffIndex(other SemanticVersion) (ComponentIndex, bool) {
	switch {
	case version.Prefix != other.Prefix:
		return PrefixIndex, true
	case version.Major != other.Major:
		return MajorIndex, true
	case version.Minor != other.Minor:
		return MinorIndex, true
	case version.Patch != other.Patch:
		return PatchIndex, true
	default:
		return 0, false
	}
}

// Next returns a copy with the component at index incremented and less significant components reset.
func (version SemanticVersion) Next(index ComponentIndex) (SemanticVersion, error) {
	next := version
	switch index {
	case MajorIndex:
		next.Major++
		next.Minor = 0
		next.Patch = 0
	case MinorIndex:
		next.Minor++
		next.Patch = 0
	case PatchIndex:
		next.Patch++
	default:
		return SemanticVersion{}, InvalidIndexError{Index: index}
	}
	return next, nil
}

// Sort orders versions ascending by major, minor, patch.
func Sort(versions []SemanticVersion) {
	sort.SliceStable(versions, func(leftIndex int, rightIndex int) bool {
		return versions[leftIndex].Less(versions[rightIndex])
	})
}

func compareIntegers(left int, right int) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}
