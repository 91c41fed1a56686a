package repository

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/semver"
)

const (
	commitEntrySeparatorConstant          = "\ncommit "
	lineSeparatorConstant                 = "\n"
	unexpectedCommitEntryTemplateConstant = "unexpected commit entry %q"
	compositeIndentMessageConstant        = "commit message looks composite but is not consistently indented"
	droppingCompositeMessageConstant      = "dropping composite commit preamble"
	logFieldCommitConstant                = "commit"
	logFieldIndentConstant                = "indent"
	logFieldPreambleConstant              = "preamble"
)

var (
	mediumPrettyCommitPattern  = regexp.MustCompile(`\A(.+)\n(?:Merge: .*?\n)?Author: *(.+)\nDate: *(.*)\n`)
	embeddedCommitPattern      = regexp.MustCompile(`(?m)^( *)commit [a-f0-9]+\n^\s*Author: .+\n^\s*Date:   .+\n`)
	embeddedSummaryLinePattern = regexp.MustCompile(`^\s*(?:\*\s*)?[a-z]+\(.+?\): .+`)

	// DefaultMajorPatterns mark a commit as requiring a major version bump.
	DefaultMajorPatterns = []*regexp.Regexp{regexp.MustCompile(`(?m)^\s*(.*?BREAKING CHANGE.*)`)}
	// DefaultMinorPatterns mark a commit as requiring a minor version bump.
	DefaultMinorPatterns = []*regexp.Regexp{regexp.MustCompile(`(?m)^\s*(?:\*\s+)?((?:feat|feature|config)[\(:].*)`)}
	// DefaultPatchPatterns mark a commit as requiring only a patch version bump.
	DefaultPatchPatterns = []*regexp.Regexp{regexp.MustCompile(`(?m)^\s*(?:\*\s+)?((?:fix|bug|chore|docs?|perf|refactor|test)[\(:].*)`)}
)

// CommitMessage is one entry of "git log --pretty=medium".
type CommitMessage struct {
	CommitID string `yaml:"commit_id"`
	Author   string `yaml:"author"`
	Date     string `yaml:"date"`
	Message  string `yaml:"message"`
}

// ParseCommitMessage parses one log entry whose leading "commit " has already been removed.
func ParseCommitMessage(entry string) (CommitMessage, error) {
	matchIndexes := mediumPrettyCommitPattern.FindStringSubmatchIndex(entry)
	if matchIndexes == nil {
		return CommitMessage{}, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(unexpectedCommitEntryTemplateConstant, entry), nil)
	}

	lines := strings.Split(entry[matchIndexes[7]:], lineSeparatorConstant)
	for lineIndex := range lines {
		lines[lineIndex] = strings.TrimRightFunc(lines[lineIndex], unicode.IsSpace)
	}
	for len(lines) > 0 && len(lines[0]) == 0 {
		lines = lines[1:]
	}
	for len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}

	return CommitMessage{
		CommitID: entry[matchIndexes[2]:matchIndexes[3]],
		Author:   entry[matchIndexes[4]:matchIndexes[5]],
		Date:     entry[matchIndexes[6]:matchIndexes[7]],
		Message:  strings.Join(lines, lineSeparatorConstant),
	}, nil
}

// ParseCommitMessages parses the complete output of "git log --pretty=medium".
func ParseCommitMessages(logOutput string) ([]CommitMessage, error) {
	entries := strings.Split(lineSeparatorConstant+strings.TrimSpace(logOutput), commitEntrySeparatorConstant)[1:]
	messages := make([]CommitMessage, 0, len(entries))
	for _, entry := range entries {
		message, parseError := ParseCommitMessage(entry)
		if parseError != nil {
			return nil, parseError
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// NormalizeCommitMessages splits merge commits that embed other commits, and
// commits whose body carries several conventional summaries, into one message each.
func NormalizeCommitMessages(logger *zap.Logger, messages []CommitMessage) ([]CommitMessage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	unpacked, unpackError := unpackEmbeddedCommits(logger, messages)
	if unpackError != nil {
		return nil, unpackError
	}
	return unpackEmbeddedSummaries(unpacked), nil
}

func unpackEmbeddedCommits(logger *zap.Logger, messages []CommitMessage) ([]CommitMessage, error) {
	result := make([]CommitMessage, 0, len(messages))
	for _, message := range messages {
		text := message.Message
		found := embeddedCommitPattern.FindStringSubmatchIndex(text)
		if found == nil {
			result = append(result, message)
			continue
		}

		indent := text[found[2]:found[3]]
		preamble := text[:found[2]]
		prunedLines := make([]string, 0)
		for _, line := range strings.Split(text[found[2]:], lineSeparatorConstant) {
			if strings.HasPrefix(line, indent) {
				prunedLines = append(prunedLines, line[len(indent):])
				continue
			}
			if len(line) == 0 {
				prunedLines = append(prunedLines, line)
				continue
			}
			logger.Warn(compositeIndentMessageConstant, zap.String(logFieldCommitConstant, message.CommitID), zap.Int(logFieldIndentConstant, len(indent)))
			prunedLines = nil
			result = append(result, message)
			break
		}
		if len(prunedLines) == 0 {
			continue
		}

		if len(strings.TrimSpace(preamble)) > 0 {
			logger.Info(droppingCompositeMessageConstant, zap.String(logFieldCommitConstant, message.CommitID), zap.String(logFieldPreambleConstant, preamble))
		}
		embedded, parseError := ParseCommitMessages(strings.Join(prunedLines, lineSeparatorConstant))
		if parseError != nil {
			return nil, parseError
		}
		result = append(result, embedded...)
	}
	return result, nil
}

// All messages split from one commit keep that commit's id, author, and date.
func unpackEmbeddedSummaries(messages []CommitMessage) []CommitMessage {
	result := make([]CommitMessage, 0, len(messages))
	for _, message := range messages {
		lines := strings.Split(message.Message, lineSeparatorConstant)
		previous := -1
		for lineIndex, line := range lines {
			if !embeddedSummaryLinePattern.MatchString(line) {
				continue
			}
			if previous >= 0 {
				result = append(result, message.withText(strings.Join(lines[previous:lineIndex], lineSeparatorConstant)))
			}
			previous = lineIndex
		}
		if previous < 0 {
			previous = 0
		}
		result = append(result, message.withText(strings.Join(lines[previous:], lineSeparatorConstant)))
	}
	return result
}

func (message CommitMessage) withText(text string) CommitMessage {
	return CommitMessage{CommitID: message.CommitID, Author: message.Author, Date: message.Date, Message: strings.TrimRightFunc(text, unicode.IsSpace)}
}

// DetermineSemverImplication returns the version component this commit requires bumping.
// Commits matching none of the patterns default to a patch.
func (message CommitMessage) DetermineSemverImplication() semver.ComponentIndex {
	text := strings.TrimSpace(message.Message)
	attempts := []struct {
		patterns []*regexp.Regexp
		index    semver.ComponentIndex
	}{
		{patterns: DefaultMajorPatterns, index: semver.MajorIndex},
		{patterns: DefaultMinorPatterns, index: semver.MinorIndex},
		{patterns: DefaultPatchPatterns, index: semver.PatchIndex},
	}
	for _, attempt := range attempts {
		for _, pattern := range attempt.patterns {
			if pattern.MatchString(text) {
				return attempt.index
			}
		}
	}
	return semver.PatchIndex
}

// DetermineSemverImplicationOnList returns the most significant implication across messages.
// The boolean is false when messages is empty.
func DetermineSemverImplicationOnList(messages []CommitMessage) (semver.ComponentIndex, bool) {
	if len(messages) == 0 {
		return semver.PatchIndex, false
	}
	mostSignificant := semver.PatchIndex
	for _, message := range messages {
		if implication := message.DetermineSemverImplication(); implication < mostSignificant {
			mostSignificant = implication
		}
	}
	return mostSignificant, true
}
