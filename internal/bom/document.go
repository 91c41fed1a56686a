package bom

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
)

const (
	bomPathPurposeConstant         = "bom_path"
	readDocumentTemplateConstant   = "unable to read BOM %s"
	parseDocumentTemplateConstant  = "unable to parse BOM %s"
	missingServiceTemplateConstant = "BOM does not contain service %q"
	missingVersionMessageConstant  = "BOM malformed, missing version key"
	buildNumberSeparatorConstant   = "-"
	documentYAMLIndentConstant     = 2
	unnamedDocumentSourceConstant  = "document"
)

// ArtifactSources locates the published artifacts of a release.
type ArtifactSources struct {
	GitPrefix          string `yaml:"gitPrefix,omitempty"`
	DebianRepository   string `yaml:"debianRepository,omitempty"`
	DockerRegistry     string `yaml:"dockerRegistry,omitempty"`
	GoogleImageProject string `yaml:"googleImageProject,omitempty"`
}

// ServiceEntry pins one service to a commit and build version.
// GitPrefix is only present when the service is not hosted under the default prefix.
type ServiceEntry struct {
	Commit    string `yaml:"commit,omitempty"`
	Version   string `yaml:"version,omitempty"`
	GitPrefix string `yaml:"gitPrefix,omitempty"`
}

// SemverPart returns the version up to the first "-".
func (entry ServiceEntry) SemverPart() string {
	return SemverPart(entry.Version)
}

// BuildNumber returns the version after the first "-".
func (entry ServiceEntry) BuildNumber() string {
	return BuildNumber(entry.Version)
}

// Document is a bill of materials. A nil service entry is a service the BOM declares without pinning.
type Document struct {
	ArtifactSources ArtifactSources          `yaml:"artifactSources"`
	Dependencies    map[string]any           `yaml:"dependencies,omitempty"`
	Services        map[string]*ServiceEntry `yaml:"services"`
	Version         string                   `yaml:"version"`
	Timestamp       string                   `yaml:"timestamp"`
}

// Service returns the entry for name or a ConfigError when the BOM does not pin it.
func (document *Document) Service(name string) (ServiceEntry, error) {
	if document != nil {
		if entry, found := document.Services[name]; found && entry != nil {
			return *entry, nil
		}
	}
	return ServiceEntry{}, buildtoolerrors.NewConfigError(fmt.Sprintf(missingServiceTemplateConstant, name), nil)
}

// HasService reports whether the BOM declares name, pinned or not.
func (document *Document) HasService(name string) bool {
	if document == nil {
		return false
	}
	_, found := document.Services[name]
	return found
}

// ServiceNames returns the declared services in name order.
func (document *Document) ServiceNames() []string {
	if document == nil {
		return nil
	}
	names := make([]string, 0, len(document.Services))
	for name := range document.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequireVersion returns the BOM version or a ConfigError when it is missing.
func (document *Document) RequireVersion() (string, error) {
	if document == nil || len(strings.TrimSpace(document.Version)) == 0 {
		return "", buildtoolerrors.NewConfigError(missingVersionMessageConstant, nil)
	}
	return document.Version, nil
}

// Clone returns a deep copy of the document.
func (document *Document) Clone() *Document {
	if document == nil {
		return nil
	}
	duplicate := *document
	duplicate.Dependencies = cloneValue(document.Dependencies).(map[string]any)
	if document.Services != nil {
		duplicate.Services = make(map[string]*ServiceEntry, len(document.Services))
		for name, entry := range document.Services {
			if entry == nil {
				duplicate.Services[name] = nil
				continue
			}
			entryCopy := *entry
			duplicate.Services[name] = &entryCopy
		}
	}
	return &duplicate
}

// SemverPart returns version up to its first "-", or all of it.
func SemverPart(version string) string {
	if index := strings.Index(version, buildNumberSeparatorConstant); index >= 0 {
		return version[:index]
	}
	return version
}

// BuildNumber returns version after its first "-", or all of it when there is none.
func BuildNumber(version string) string {
	return version[strings.Index(version, buildNumberSeparatorConstant)+1:]
}

// ParseDocument decodes a BOM. source names the content in error messages.
func ParseDocument(content []byte, source string) (*Document, error) {
	if len(source) == 0 {
		source = unnamedDocumentSourceConstant
	}
	document := &Document{}
	if decodeError := yaml.Unmarshal(content, document); decodeError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(parseDocumentTemplateConstant, source), decodeError)
	}
	return document, nil
}

// LoadDocument reads the BOM stored at path.
func LoadDocument(path string) (*Document, error) {
	if existsError := buildtoolerrors.CheckPathExists(path, bomPathPurposeConstant); existsError != nil {
		return nil, existsError
	}
	content, readError := os.ReadFile(path)
	if readError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(readDocumentTemplateConstant, path), readError)
	}
	return ParseDocument(content, path)
}

// MarshalDocument renders the BOM as block-style YAML.
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

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		if typed == nil {
			return map[string]any(nil)
		}
		duplicate := make(map[string]any, len(typed))
		for key, item := range typed {
			duplicate[key] = cloneValue(item)
		}
		return duplicate
	case []any:
		duplicate := make([]any, len(typed))
		for index, item := range typed {
			duplicate[index] = cloneValue(item)
		}
		return duplicate
	default:
		return value
	}
}
