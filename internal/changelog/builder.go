package changelog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/repository"
)

// Partition titles in the order they are reported.
const (
	BreakingChangesPartition = "Breaking Changes"
	FeaturesPartition        = "Features"
	ConfigurationPartition   = "Configuration"
	FixesPartition           = "Fixes"
	OtherPartition           = "Other"
)

const (
	repositoryHeadingTemplateConstant = "## [%s](#%s) %s"
	typeHeadingConstant               = "### Changes by Type"
	sequenceHeadingConstant           = "### Changes by Sequence"
	partitionHeadingTemplateConstant  = "#### %s"
	noSignificantChangesConstant      = "  No Significant Changes."
	partitionEntryTemplateConstant    = "* %s (%s)"
	thingEntryTemplateConstant        = "**%s:**  %s"
	sequenceEntryTemplateConstant     = "**%s** (%s)\n%s\n"
	commitLinkTemplateConstant        = "[%s](%s/commit/%s)"
	shortCommitLengthConstant         = 8
	lineSeparatorConstant             = "\n"
	normalizeFailedMessageConstant    = "unable to normalize commit messages"
	logFieldRepositoryConstant        = "repository"
)

var (
	titleLinePattern           = regexp.MustCompile(`^\W*\w+\(([^\)]+)\)\s*[:-]?(.*)`)
	trailingPullRequestPattern = regexp.MustCompile(`^(.*?)\s*\(#\d+\)$`)
	partitionDefinitions       = []partitionDefinition{
		{title: BreakingChangesPartition, pattern: regexp.MustCompile(`(?m)^\s*(.*?BREAKING CHANGE.*)`)},
		{title: FeaturesPartition, pattern: regexp.MustCompile(`(?m)^\s*(?:\*\s+)?((?:feat|feature)[\(:].*)`)},
		{title: ConfigurationPartition, pattern: regexp.MustCompile(`(?m)^\s*(?:\*\s+)?((?:config)[\(:].*)`)},
		{title: FixesPartition, pattern: regexp.MustCompile(`(?m)^\s*(?:\*\s+)?((?:bug|fix)[\(:].*)`)},
		{title: OtherPartition, pattern: regexp.MustCompile(`.*`)},
	}
)

type partitionDefinition struct {
	title   string
	pattern *regexp.Regexp
}

// Partition is the commits of one kind of change.
type Partition struct {
	Title    string
	Messages []repository.CommitMessage
}

// RepositoryData is the change information collected for one repository.
type RepositoryData struct {
	Spec               repository.Spec
	Summary            repository.RepositorySummary
	NormalizedMessages []repository.CommitMessage
}

// PartitionCommits groups the messages by kind of change, most significant kind first.
// A message belongs to the first kind whose pattern matches anywhere in it. Kinds without
// messages are left out. With sorted set, each kind is ordered by the thing its title names.
func (data RepositoryData) PartitionCommits(sorted bool) []Partition {
	workspace := make(map[string][]repository.CommitMessage, len(partitionDefinitions))
	for _, message := range data.NormalizedMessages {
		for _, definition := range partitionDefinitions {
			if definition.pattern.MatchString(message.Message) {
				workspace[definition.title] = append(workspace[definition.title], message)
				break
			}
		}
	}

	partitions := make([]Partition, 0, len(workspace))
	for _, definition := range partitionDefinitions {
		messages, present := workspace[definition.title]
		if !present {
			continue
		}
		if sorted {
			messages = SortPartition(messages)
		}
		partitions = append(partitions, Partition{Title: definition.title, Messages: messages})
	}
	return partitions
}

// SortPartition orders messages by the thing named in their "type(thing): subject" title,
// keeping the original order among messages about the same thing. Titles without a thing sort first.
func SortPartition(messages []repository.CommitMessage) []repository.CommitMessage {
	buckets := map[string][]repository.CommitMessage{}
	for _, message := range messages {
		thing := titleThing(firstLine(message.Message))
		buckets[thing] = append(buckets[thing], message)
	}

	things := make([]string, 0, len(buckets))
	for thing := range buckets {
		things = append(things, thing)
	}
	sort.Strings(things)

	ordered := make([]repository.CommitMessage, 0, len(messages))
	for _, thing := range things {
		ordered = append(ordered, buckets[thing]...)
	}
	return ordered
}

// CleanMessage removes a trailing "(#<pull request>)" from the first line of text.
func CleanMessage(text string) string {
	first, rest, hasRest := strings.Cut(text, lineSeparatorConstant)
	match := trailingPullRequestPattern.FindStringSubmatch(first)
	if match == nil {
		return text
	}
	if hasRest && len(rest) > 0 {
		return match[1] + lineSeparatorConstant + rest
	}
	return match[1]
}

// Builder accumulates repositories and renders their changes as markdown.
type Builder struct {
	logger        *zap.Logger
	withPartition bool
	withDetail    bool
	entries       []RepositoryData
}

// BuilderOptions choose the sections of the rendered changelog.
type BuilderOptions struct {
	// WithPartition renders changes grouped by kind.
	WithPartition bool
	// WithDetail renders every full commit message in sequence.
	WithDetail bool
}

// NewBuilder constructs a Builder.
func NewBuilder(logger *zap.Logger, options BuilderOptions) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger, withPartition: options.WithPartition, withDetail: options.WithDetail}
}

// AddRepository records the changes summarized for spec.
func (builder *Builder) AddRepository(spec repository.Spec, summary repository.RepositorySummary) {
	normalized, normalizeError := repository.NormalizeCommitMessages(builder.logger, summary.CommitMessages)
	if normalizeError != nil {
		builder.logger.Warn(normalizeFailedMessageConstant, zap.String(logFieldRepositoryConstant, spec.Name), zap.Error(normalizeError))
		normalized = summary.CommitMessages
	}
	builder.entries = append(builder.entries, RepositoryData{Spec: spec, Summary: summary, NormalizedMessages: normalized})
}

// Build renders the changelog. Repositories appear in name order; those without changes are left out.
func (builder *Builder) Build() string {
	entries := append([]RepositoryData{}, builder.entries...)
	sort.SliceStable(entries, func(first int, second int) bool {
		return entries[first].Spec.Name < entries[second].Spec.Name
	})

	report := make([]string, 0)
	for _, entry := range entries {
		if len(entry.NormalizedMessages) == 0 {
			continue
		}
		name := entry.Spec.Name
		report = append(report, fmt.Sprintf(repositoryHeadingTemplateConstant, capitalize(name), name, entry.Summary.Version), "")
		if builder.withPartition {
			report = append(report, builder.commitsByType(entry)...)
		}
		if builder.withDetail {
			report = append(report, builder.commitsBySequence(entry)...)
		}
	}
	return strings.Join(report, lineSeparatorConstant)
}

func (builder *Builder) writeCategoryHeadings() bool {
	return builder.withPartition && builder.withDetail
}

func (builder *Builder) commitsByType(entry RepositoryData) []string {
	report := make([]string, 0)
	if builder.writeCategoryHeadings() {
		report = append(report, typeHeadingConstant)
	}
	partitions := entry.PartitionCommits(true)
	if len(partitions) == 0 {
		return append(report, noSignificantChangesConstant)
	}

	for _, partition := range partitions {
		report = append(report, fmt.Sprintf(partitionHeadingTemplateConstant, partition.Title), "")
		for _, message := range partition.Messages {
			text := CleanMessage(strings.TrimSpace(firstLine(message.Message)))
			if match := titleLinePattern.FindStringSubmatch(text); match != nil {
				text = fmt.Sprintf(thingEntryTemplateConstant, match[1], strings.TrimSpace(match[2]))
			}
			report = append(report, fmt.Sprintf(partitionEntryTemplateConstant, text, commitLink(entry.Spec.Origin, message.CommitID)))
		}
		report = append(report, "")
	}
	return report
}

func (builder *Builder) commitsBySequence(entry RepositoryData) []string {
	report := make([]string, 0, len(entry.NormalizedMessages)+1)
	if builder.writeCategoryHeadings() {
		report = append(report, sequenceHeadingConstant)
	}
	for _, message := range entry.NormalizedMessages {
		level := message.DetermineSemverImplication()
		report = append(report, fmt.Sprintf(sequenceEntryTemplateConstant, level, commitLink(entry.Spec.Origin, message.CommitID), CleanMessage(message.Message)))
	}
	return report
}

func commitLink(origin string, commitID string) string {
	short := commitID
	if len(short) > shortCommitLengthConstant {
		short = short[:shortCommitLengthConstant]
	}
	return fmt.Sprintf(commitLinkTemplateConstant, short, origin, commitID)
}

func titleThing(titleLine string) string {
	match := titleLinePattern.FindStringSubmatch(titleLine)
	if match == nil {
		return ""
	}
	return match[1]
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, lineSeparatorConstant)
	return line
}

func capitalize(name string) string {
	if len(name) == 0 {
		return name
	}
	first, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(first)) + strings.ToLower(name[size:])
}
