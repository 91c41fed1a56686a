package gitrunner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/repository"
	"github.com/spinnaker/buildtool/internal/semver"
)

const (
	// BaselineTag is assumed when a commit has no release tag in its history.
	BaselineTag = "version-0.0.0"

	releaseTagMatchConstant           = "version-*"
	releaseBranchPrefixConstant       = "origin/release-"
	masterReferenceConstant           = "origin/master"
	refsTagsPrefixConstant            = "refs/tags/"
	refPartSeparatorConstant          = " "
	unexpectedShowRefTemplateConstant = "%q -> %q"
	noBaselineTagMessageConstant      = "no baseline tag, assuming this is the first release"
	alreadyTaggedMessageConstant      = "commit is already tagged"
	newerTagMessageConstant           = "found newer tag on an intersecting branch"
	logFieldCommitConstant            = "commit"
)

// ReleaseTagPattern matches the tags that mark releases.
var ReleaseTagPattern = regexp.MustCompile(`^version-[0-9]+\.[0-9]+\.[0-9]+$`)

// CommitTag is one line of "git show-ref --tags".
type CommitTag struct {
	CommitID string
	Tag      string
}

// QueryCommitAtTag returns the commit tag points at. The boolean is false when the tag is unknown.
func (runner *Runner) QueryCommitAtTag(executionContext context.Context, gitDir string, tag string) (string, bool, error) {
	output, exitCode, runError := runner.tryRun(executionContext, gitDir, "show-ref", "--", tag)
	if runError != nil {
		return "", false, runError
	}
	if exitCode != 0 {
		return "", false, nil
	}
	lines := splitLines(output)
	if len(lines) != 1 {
		return "", false, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(unexpectedShowRefTemplateConstant, tag, output), nil)
	}
	return strings.SplitN(lines[0], refPartSeparatorConstant, 2)[0], true, nil
}

// QueryTagCommits returns the tags matching pattern, newest version first.
func (runner *Runner) QueryTagCommits(executionContext context.Context, gitDir string, pattern *regexp.Regexp) ([]CommitTag, error) {
	arguments := []string{"show-ref", "--tags"}
	output, exitCode, runError := runner.tryRun(executionContext, gitDir, arguments...)
	if runError != nil {
		return nil, runError
	}
	// show-ref exits 1 without output when there are no tags at all.
	if exitCode != 0 && len(output) > 0 {
		return nil, gitFailure(gitDir, arguments, output)
	}

	tags := make([]CommitTag, 0)
	for _, line := range splitLines(output) {
		tokens := strings.SplitN(strings.TrimSpace(line), refPartSeparatorConstant, 2)
		if len(tokens) != 2 {
			continue
		}
		tag := strings.TrimPrefix(tokens[1], refsTagsPrefixConstant)
		if pattern != nil && !pattern.MatchString(tag) {
			continue
		}
		tags = append(tags, CommitTag{CommitID: tokens[0], Tag: tag})
	}
	sort.SliceStable(tags, func(left int, right int) bool {
		return compareTags(tags[left].Tag, tags[right].Tag) > 0
	})
	return tags, nil
}

// FindNewestTagAndCommonCommitFromID returns the newest release tag relevant to commitID
// and the commit from which the changes since that tag should be counted.
//
// The starting point is the newest tag in commitID's own history. A newer tag made on
// another branch wins when the branch it was made on intersects commitID's history
// somewhere other than where commitID's release branches diverged from master.
func (runner *Runner) FindNewestTagAndCommonCommitFromID(executionContext context.Context, gitDir string, commitID string, tags []CommitTag) (string, string, error) {
	startTag, startCommit, startError := runner.findStartingTag(executionContext, gitDir, commitID)
	if startError != nil {
		return "", "", startError
	}
	if startCommit == commitID {
		runner.logger.Debug(alreadyTaggedMessageConstant, zap.String(logFieldCommitConstant, commitID), zap.String(logFieldTagConstant, startTag))
		return startTag, startCommit, nil
	}

	branchNodes, nodesError := runner.releaseBranchDivergencePoints(executionContext, gitDir, commitID)
	if nodesError != nil {
		return "", "", nodesError
	}

	for _, candidate := range tags {
		if compareTags(candidate.Tag, startTag) <= 0 {
			break
		}
		intersect, intersectError := runner.Run(executionContext, gitDir, "merge-base", commitID, candidate.Tag)
		if intersectError != nil {
			return "", "", intersectError
		}
		if _, onBranch := branchNodes[intersect]; onBranch {
			continue
		}
		runner.logger.Debug(newerTagMessageConstant, zap.String(logFieldTagConstant, candidate.Tag), zap.String(logFieldCommitConstant, intersect))
		return candidate.Tag, intersect, nil
	}
	return startTag, startCommit, nil
}

func (runner *Runner) findStartingTag(executionContext context.Context, gitDir string, commitID string) (string, string, error) {
	ancestorTag, exitCode, describeError := runner.tryRun(executionContext, gitDir, "describe", "--abbrev=0", "--tags", "--match", releaseTagMatchConstant, commitID)
	if describeError != nil {
		return "", "", describeError
	}
	if exitCode != 0 {
		runner.logger.Warn(noBaselineTagMessageConstant, zap.String(logFieldGitDirConstant, gitDir))
		rootCommit, rootError := runner.Run(executionContext, gitDir, "rev-list", "--max-parents=0", "HEAD")
		if rootError != nil {
			return "", "", rootError
		}
		return BaselineTag, rootCommit, nil
	}
	tagCommit, tagError := runner.Run(executionContext, gitDir, "rev-list", "-n", "1", ancestorTag)
	if tagError != nil {
		return "", "", tagError
	}
	return ancestorTag, tagCommit, nil
}

func (runner *Runner) releaseBranchDivergencePoints(executionContext context.Context, gitDir string, commitID string) (map[string]struct{}, error) {
	masterLine, masterError := runner.Run(executionContext, gitDir, "show-ref", masterReferenceConstant)
	if masterError != nil {
		return nil, masterError
	}
	masterCommit := strings.SplitN(masterLine, refPartSeparatorConstant, 2)[0]

	containing, containsError := runner.Run(executionContext, gitDir, "branch", "-r", "--contains", commitID)
	if containsError != nil {
		return nil, containsError
	}

	nodes := map[string]struct{}{}
	for _, line := range splitLines(containing) {
		branch := strings.TrimSpace(line)
		if !strings.HasPrefix(branch, releaseBranchPrefixConstant) {
			continue
		}
		node, mergeBaseError := runner.Run(executionContext, gitDir, "merge-base", branch, masterCommit)
		if mergeBaseError != nil {
			return nil, mergeBaseError
		}
		nodes[node] = struct{}{}
	}
	return nodes, nil
}

// QueryCommitMessages returns the commits reachable from toID but not from fromID.
func (runner *Runner) QueryCommitMessages(executionContext context.Context, gitDir string, fromID string, toID string) ([]repository.CommitMessage, error) {
	history, historyError := runner.Run(executionContext, gitDir, "log", "--pretty=medium", fromID+".."+toID)
	if historyError != nil {
		return nil, historyError
	}
	return repository.ParseCommitMessages(history)
}

// QueryCommitsToExistingTagFromID returns the newest relevant tag and the commits since it.
// A non-empty baseCommitID replaces the computed common commit as the lower bound.
func (runner *Runner) QueryCommitsToExistingTagFromID(executionContext context.Context, gitDir string, commitID string, tags []CommitTag, baseCommitID string) (string, []repository.CommitMessage, error) {
	tag, commonCommit, findError := runner.FindNewestTagAndCommonCommitFromID(executionContext, gitDir, commitID, tags)
	if findError != nil {
		return "", nil, findError
	}
	if len(baseCommitID) > 0 {
		commonCommit = baseCommitID
	}
	messages, messagesError := runner.QueryCommitMessages(executionContext, gitDir, commonCommit, commitID)
	if messagesError != nil {
		return "", nil, messagesError
	}
	return tag, messages, nil
}

// CollectRepositorySummary summarizes HEAD of gitDir against its newest release tag.
// When commits exist since that tag the summary proposes the next version they imply.
func (runner *Runner) CollectRepositorySummary(executionContext context.Context, gitDir string, baseCommitID string) (repository.RepositorySummary, error) {
	tags, tagsError := runner.QueryTagCommits(executionContext, gitDir, ReleaseTagPattern)
	if tagsError != nil {
		return repository.RepositorySummary{}, tagsError
	}
	currentID, currentError := runner.QueryLocalRepositoryCommitID(gitDir)
	if currentError != nil {
		return repository.RepositorySummary{}, currentError
	}
	tag, messages, queryError := runner.QueryCommitsToExistingTagFromID(executionContext, gitDir, currentID, tags, baseCommitID)
	if queryError != nil {
		return repository.RepositorySummary{}, queryError
	}

	baselineTag := tag
	if len(baselineTag) == 0 {
		baselineTag = BaselineTag
	}
	currentVersion, parseError := semver.Make(baselineTag)
	if parseError != nil {
		return repository.RepositorySummary{}, buildtoolerrors.NewUnexpectedError(parseError.Error(), parseError)
	}

	useTag := tag
	useVersion := currentVersion.ToVersion()
	if implication, found := repository.DetermineSemverImplicationOnList(messages); found {
		nextVersion, nextError := currentVersion.Next(implication)
		if nextError != nil {
			return repository.RepositorySummary{}, buildtoolerrors.NewUnexpectedError(nextError.Error(), nextError)
		}
		useTag = nextVersion.ToTag()
		useVersion = nextVersion.ToVersion()
	}

	return repository.RepositorySummary{
		CommitID:       currentID,
		Tag:            useTag,
		Version:        useVersion,
		PriorVersion:   currentVersion.ToVersion(),
		CommitMessages: messages,
	}, nil
}

// compareTags orders release tags by version, falling back to text for other tags.
func compareTags(first string, second string) int {
	firstVersion, firstError := semver.Make(first)
	secondVersion, secondError := semver.Make(second)
	if firstError == nil && secondError == nil {
		return firstVersion.Compare(secondVersion)
	}
	return strings.Compare(first, second)
}
