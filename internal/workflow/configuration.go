package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
)

const (
	optionKeySeparatorConstant         = "."
	configurationTagNameConstant       = "mapstructure"
	listSeparatorConstant              = ","
	invalidStepOptionsTemplateConstant = "invalid workflow step options %s"
	conflictingOptionTemplateConstant  = "option %q is set both as a value and as a section"
	onlyRepositoriesKeyConstant        = "only_repositories"
	excludeRepositoriesKeyConstant     = "exclude_repositories"
)

// OperationType identifies the release command a workflow step runs.
type OperationType string

// Supported workflow operations.
const (
	OperationTypeBuildBom         OperationType = OperationType("build_bom")
	OperationTypeBuildChangelog   OperationType = OperationType("build_changelog")
	OperationTypeFetchVersions    OperationType = OperationType("fetch_versions")
	OperationTypeUpdateVersions   OperationType = OperationType("update_versions")
	OperationTypeTagContainers    OperationType = OperationType("tag_containers")
	OperationTypePublishChangelog OperationType = OperationType("publish_changelog")
	OperationTypePublishBom       OperationType = OperationType("publish_bom")
	OperationTypePublishVersions  OperationType = OperationType("publish_versions")
	OperationTypeTagBranch        OperationType = OperationType("tag_branch")
	OperationTypeNewReleaseBranch OperationType = OperationType("new_release_branch")
)

// StepConfiguration associates an operation with the configuration keys it overrides.
// Keys use the configuration file names, either dotted ("git.branch") or nested.
type StepConfiguration struct {
	Operation OperationType  `yaml:"operation"`
	Options   map[string]any `yaml:"with"`
}

// ApplyStepOptions returns a copy of configuration with options decoded over it.
// Keys that are not configuration options are rejected.
func ApplyStepOptions(configuration buildconfig.Configuration, options map[string]any) (buildconfig.Configuration, error) {
	updated := configuration
	updated.OnlyRepositories = append([]string(nil), configuration.OnlyRepositories...)
	updated.ExcludeRepositories = append([]string(nil), configuration.ExcludeRepositories...)
	if len(options) == 0 {
		return updated, nil
	}

	expanded, expandError := expandOptionKeys(options)
	if expandError != nil {
		return buildconfig.Configuration{}, expandError
	}
	if _, replaced := expanded[onlyRepositoriesKeyConstant]; replaced {
		updated.OnlyRepositories = nil
	}
	if _, replaced := expanded[excludeRepositoriesKeyConstant]; replaced {
		updated.ExcludeRepositories = nil
	}
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &updated,
		TagName:     configurationTagNameConstant,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(listSeparatorConstant),
		),
	})
	if decoderError != nil {
		return buildconfig.Configuration{}, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(invalidStepOptionsTemplateConstant, describeOptions(options)), decoderError)
	}
	if decodeError := decoder.Decode(expanded); decodeError != nil {
		return buildconfig.Configuration{}, buildtoolerrors.NewConfigError(fmt.Sprintf(invalidStepOptionsTemplateConstant, describeOptions(options)), decodeError)
	}
	return updated, nil
}

func expandOptionKeys(options map[string]any) (map[string]any, error) {
	expanded := map[string]any{}
	for key, value := range options {
		parts := strings.Split(key, optionKeySeparatorConstant)
		section := expanded
		for _, part := range parts[:len(parts)-1] {
			existing, present := section[part]
			if !present {
				child := map[string]any{}
				section[part] = child
				section = child
				continue
			}
			child, isSection := existing.(map[string]any)
			if !isSection {
				return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(conflictingOptionTemplateConstant, key), nil)
			}
			section = child
		}
		leaf := parts[len(parts)-1]
		if mergeError := mergeOption(section, leaf, value, key); mergeError != nil {
			return nil, mergeError
		}
	}
	return expanded, nil
}

func mergeOption(section map[string]any, leaf string, value any, key string) error {
	existing, present := section[leaf]
	if !present {
		section[leaf] = copyOption(value)
		return nil
	}
	existingSection, existingIsSection := existing.(map[string]any)
	valueSection, valueIsSection := value.(map[string]any)
	if !existingIsSection || !valueIsSection {
		return buildtoolerrors.NewConfigError(fmt.Sprintf(conflictingOptionTemplateConstant, key), nil)
	}
	for childKey, childValue := range valueSection {
		if mergeError := mergeOption(existingSection, childKey, childValue, key+optionKeySeparatorConstant+childKey); mergeError != nil {
			return mergeError
		}
	}
	return nil
}

func copyOption(value any) any {
	nested, isSection := value.(map[string]any)
	if !isSection {
		return value
	}
	copied := make(map[string]any, len(nested))
	for key, child := range nested {
		copied[key] = copyOption(child)
	}
	return copied
}

func describeOptions(options map[string]any) string {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, listSeparatorConstant)
}
