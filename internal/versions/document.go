package versions

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
)

const (
	initialVersionConstant           = "0.0.0"
	documentYAMLIndentConstant       = 2
	versionsPathPurposeConstant      = "versions_yml_path"
	readDocumentTemplateConstant     = "unable to read versions.yml %s"
	parseDocumentTemplateConstant    = "unable to parse versions.yml from %s"
	schemaViolationTemplateConstant  = "versions.yml does not match its schema: %s"
	invalidVersionTemplateConstant   = "%s %q is not a semantic version"
	missingFieldTemplateConstant     = "%s is required"
	schemaViolationSeparatorConstant = "; "
	latestHalyardFieldConstant       = "latestHalyard"
	latestSpinnakerFieldConstant     = "latestSpinnaker"
	releaseFieldTemplateConstant     = "versions[%d].%s"
	illegalFieldTemplateConstant     = "illegalVersions[%d].%s"
	aliasFieldConstant               = "alias"
	changelogFieldConstant           = "changelog"
	lastUpdateFieldConstant          = "lastUpdate"
	minimumHalyardFieldConstant      = "minimumHalyardVersion"
	versionFieldConstant             = "version"
	reasonFieldConstant              = "reason"
)

// Release is one supported Spinnaker release.
type Release struct {
	Alias                 string `yaml:"alias"`
	Changelog             string `yaml:"changelog"`
	LastUpdate            int64  `yaml:"lastUpdate"`
	MinimumHalyardVersion string `yaml:"minimumHalyardVersion"`
	Version               string `yaml:"version"`
}

// IllegalVersion is a release halyard refuses to install.
type IllegalVersion struct {
	Reason  string `yaml:"reason"`
	Version string `yaml:"version"`
}

// Document is the content of versions.yml.
type Document struct {
	IllegalVersions []IllegalVersion `yaml:"illegalVersions,omitempty"`
	LatestHalyard   string           `yaml:"latestHalyard"`
	LatestSpinnaker string           `yaml:"latestSpinnaker"`
	Versions        []Release        `yaml:"versions"`
}

// NewDocument returns the document a first release is added to.
func NewDocument() *Document {
	return &Document{LatestHalyard: initialVersionConstant, LatestSpinnaker: initialVersionConstant, Versions: []Release{}}
}

// Clone returns a copy that shares no slices with document.
func (document *Document) Clone() *Document {
	duplicate := *document
	duplicate.IllegalVersions = append([]IllegalVersion(nil), document.IllegalVersions...)
	duplicate.Versions = append([]Release{}, document.Versions...)
	return &duplicate
}

// Validate checks every version field is a strict semantic version and every
// release carries its required fields. All violations are reported together.
func (document *Document) Validate() error {
	violations := make([]string, 0)
	checkVersion := func(field string, value string) {
		if _, parseError := semver.StrictNewVersion(value); parseError != nil {
			violations = append(violations, fmt.Sprintf(invalidVersionTemplateConstant, field, value))
		}
	}
	checkPresent := func(field string, value string) {
		if len(strings.TrimSpace(value)) == 0 {
			violations = append(violations, fmt.Sprintf(missingFieldTemplateConstant, field))
		}
	}

	checkVersion(latestHalyardFieldConstant, document.LatestHalyard)
	checkVersion(latestSpinnakerFieldConstant, document.LatestSpinnaker)
	for index, release := range document.Versions {
		checkPresent(fmt.Sprintf(releaseFieldTemplateConstant, index, aliasFieldConstant), release.Alias)
		checkPresent(fmt.Sprintf(releaseFieldTemplateConstant, index, changelogFieldConstant), release.Changelog)
		checkPresent(fmt.Sprintf(releaseFieldTemplateConstant, index, minimumHalyardFieldConstant), release.MinimumHalyardVersion)
		if release.LastUpdate <= 0 {
			violations = append(violations, fmt.Sprintf(missingFieldTemplateConstant, fmt.Sprintf(releaseFieldTemplateConstant, index, lastUpdateFieldConstant)))
		}
		checkVersion(fmt.Sprintf(releaseFieldTemplateConstant, index, versionFieldConstant), release.Version)
	}
	for index, illegal := range document.IllegalVersions {
		checkPresent(fmt.Sprintf(illegalFieldTemplateConstant, index, reasonFieldConstant), illegal.Reason)
		checkVersion(fmt.Sprintf(illegalFieldTemplateConstant, index, versionFieldConstant), illegal.Version)
	}

	if len(violations) == 0 {
		return nil
	}
	return buildtoolerrors.NewConfigError(fmt.Sprintf(schemaViolationTemplateConstant, strings.Join(violations, schemaViolationSeparatorConstant)), nil)
}

// ParseDocument decodes versions.yml. Unknown keys are rejected. source names the content in error messages.
func ParseDocument(content []byte, source string) (*Document, error) {
	document := NewDocument()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if decodeError := decoder.Decode(document); decodeError != nil && !errors.Is(decodeError, io.EOF) {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(parseDocumentTemplateConstant, source), decodeError)
	}
	if document.Versions == nil {
		document.Versions = []Release{}
	}
	return document, nil
}

// LoadDocument reads versions.yml from path.
func LoadDocument(path string) (*Document, error) {
	if existsError := buildtoolerrors.CheckPathExists(path, versionsPathPurposeConstant); existsError != nil {
		return nil, existsError
	}
	content, readError := os.ReadFile(path)
	if readError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(readDocumentTemplateConstant, path), readError)
	}
	return ParseDocument(content, path)
}

// MarshalDocument renders the document as block style YAML.
func MarshalDocument(document *Document) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(documentYAMLIndentConstant)
	if encodeError := encoder.Encode(document); encodeError != nil {
		return nil, encodeError
	}
	if closeError := encoder.Close(); closeError != nil {
		return nil, closeError
	}
	return buffer.Bytes(), nil
}
