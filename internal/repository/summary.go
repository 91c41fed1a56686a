package repository

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
)

const (
	versionSeparatorConstant           = "."
	versionNotTripleTemplateConstant   = "version %q is not X.Y.Z"
	unexpectedSequenceTemplateConstant = "unexpected version sequence %s to %s"
	yamlIndentConstant                 = 2
)

// RepositorySummary describes a repository head relative to its newest release tag.
// An empty CommitMessages means Tag and Version already exist; otherwise they are proposed.
type RepositorySummary struct {
	CommitID       string          `yaml:"commit_id"`
	Tag            string          `yaml:"tag"`
	Version        string          `yaml:"version"`
	PriorVersion   string          `yaml:"prev_version"`
	CommitMessages []CommitMessage `yaml:"commit_messages"`
}

// Patchable reports whether Version only bumps the patch of PriorVersion.
func (summary RepositorySummary) Patchable() (bool, error) {
	priorParts, priorError := splitVersion(summary.PriorVersion)
	if priorError != nil {
		return false, priorError
	}
	currentParts, currentError := splitVersion(summary.Version)
	if currentError != nil {
		return false, currentError
	}
	if priorParts[0] != currentParts[0] || priorParts[1] != currentParts[1] {
		return false, nil
	}
	if priorParts[2]+1 != currentParts[2] {
		return false, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(unexpectedSequenceTemplateConstant, summary.PriorVersion, summary.Version), nil)
	}
	return true, nil
}

// MarshalSummary renders the summary as block-style YAML.
func MarshalSummary(summary RepositorySummary) ([]byte, error) {
	return marshalBlockYAML(summary)
}

// UnmarshalSummary parses YAML produced by MarshalSummary.
func UnmarshalSummary(content []byte) (RepositorySummary, error) {
	var summary RepositorySummary
	if decodeError := yaml.Unmarshal(content, &summary); decodeError != nil {
		return RepositorySummary{}, decodeError
	}
	return summary, nil
}

// MarshalSourceInfo renders source info as block-style YAML.
func MarshalSourceInfo(info SourceInfo) ([]byte, error) {
	return marshalBlockYAML(info)
}

// UnmarshalSourceInfo parses YAML produced by MarshalSourceInfo.
func UnmarshalSourceInfo(content []byte) (SourceInfo, error) {
	var info SourceInfo
	if decodeError := yaml.Unmarshal(content, &info); decodeError != nil {
		return SourceInfo{}, decodeError
	}
	return info, nil
}

func marshalBlockYAML(value any) ([]byte, error) {
	var builder strings.Builder
	encoder := yaml.NewEncoder(&builder)
	encoder.SetIndent(yamlIndentConstant)
	if encodeError := encoder.Encode(value); encodeError != nil {
		return nil, encodeError
	}
	if closeError := encoder.Close(); closeError != nil {
		return nil, closeError
	}
	return []byte(builder.String()), nil
}

func splitVersion(version string) ([3]int, error) {
	var parts [3]int
	tokens := strings.Split(version, versionSeparatorConstant)
	if len(tokens) != len(parts) {
		return parts, buildtoolerrors.NewConfigError(fmt.Sprintf(versionNotTripleTemplateConstant, version), nil)
	}
	for tokenIndex, token := range tokens {
		value, convertError := strconv.Atoi(token)
		if convertError != nil {
			return parts, buildtoolerrors.NewConfigError(fmt.Sprintf(versionNotTripleTemplateConstant, version), convertError)
		}
		parts[tokenIndex] = value
	}
	return parts, nil
}
