package changelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/processor"
)

const (
	// PushChangelogCommandName names the push_changelog_to_gist command.
	PushChangelogCommandName = "push_changelog_to_gist"

	gistURLOptionConstant         = "changelog_gist_url"
	gitBranchOptionConstant       = "git_branch"
	changelogPathPurposeConstant  = "changelog_path"
	gistMasterBranchConstant      = "master"
	gistOriginMasterConstant      = "origin/master"
	originRemoteNameConstant      = "origin"
	rawChangelogTemplateConstant  = "%s-raw-changelog.md"
	gistCommitTemplateConstant    = "Updated %s"
	copyChangelogTemplateConstant = "unable to copy changelog %s to %s"
	gistPathSeparatorConstant     = "/"
	gistSSHSeparatorConstant      = ":"
	retryInitialIntervalConstant  = time.Second
	retryMaxIntervalConstant      = 16 * time.Second
	retryMaxElapsedTimeConstant   = 2 * time.Minute
	cloningGistMessageConstant    = "Cloning gist"
	updatingGistMessageConstant   = "Updating gist"
	pushingGistMessageConstant    = "Pushing back gist"
	retryingGitMessageConstant    = "retrying git command"
	neverPushGistMessageConstant  = "skipping gist push because git never_push is enabled"
	logFieldGistConstant          = "gist"
	logFieldGitDirConstant        = "git_dir"
	logFieldCommandConstant       = "command"
	logFieldDelayConstant         = "delay"
)

// PushResult describes where push_changelog_to_gist placed the changelog.
type PushResult struct {
	GistDir  string
	FileName string
}

// GistID returns the identifier at the end of a gist URL, after its last "/" or, for ssh URLs, its last ":".
func GistID(gistURL string) string {
	index := strings.LastIndex(gistURL, gistPathSeparatorConstant)
	if index < 0 {
		index = strings.LastIndex(gistURL, gistSSHSeparatorConstant)
	}
	return gistURL[index+1:]
}

// PushChangelogToGist commits the built changelog into the configured gist as
// "<branch>-raw-changelog.md", overwriting an earlier push for the same branch.
// Gist remotes are flaky so every remote git command is retried with exponential backoff.
func PushChangelogToGist(executionContext context.Context, environment dependencies.Environment) (PushResult, error) {
	var result PushResult
	commandProcessor := processor.NewCommandProcessor(environment.Logger, environment.Registry, PushChangelogCommandName)
	runError := commandProcessor.Run(executionContext, func(runContext context.Context) error {
		pushed, pushError := pushChangelog(runContext, environment)
		result = pushed
		return pushError
	})
	if runError != nil {
		return PushResult{}, runError
	}
	return result, nil
}

func pushChangelog(executionContext context.Context, environment dependencies.Environment) (PushResult, error) {
	configuration := environment.Configuration
	gistURL := configuration.Changelog.GistURL
	if checkError := buildtoolerrors.CheckOptionsSet(PushChangelogCommandName, map[string]string{
		gistURLOptionConstant:   gistURL,
		gitBranchOptionConstant: configuration.Git.Branch,
	}); checkError != nil {
		return PushResult{}, checkError
	}

	changelogPath := configuration.Changelog.Path
	if len(changelogPath) == 0 {
		changelogPath = OutputPath(configuration.OutputDir)
	}
	if checkError := buildtoolerrors.CheckPathExists(changelogPath, changelogPathPurposeConstant); checkError != nil {
		return PushResult{}, checkError
	}

	gitDir := filepath.Join(configuration.InputDir, GistID(gistURL))
	if _, statError := os.Stat(gitDir); statError != nil {
		environment.Logger.Debug(cloningGistMessageConstant, zap.String(logFieldGistConstant, gistURL))
		parentDir := filepath.Dir(gitDir)
		if mkdirError := os.MkdirAll(parentDir, outputDirectoryPermissionsConstant); mkdirError != nil {
			return PushResult{}, buildtoolerrors.NewConfigError(parentDir, mkdirError)
		}
		if cloneError := runWithRetries(executionContext, environment, parentDir, "clone", gistURL); cloneError != nil {
			return PushResult{}, cloneError
		}
	} else {
		environment.Logger.Debug(updatingGistMessageConstant, zap.String(logFieldGitDirConstant, gitDir))
		for _, arguments := range [][]string{
			{"fetch", originRemoteNameConstant, gistMasterBranchConstant},
			{"checkout", gistMasterBranchConstant},
			{"reset", "--hard", gistOriginMasterConstant},
		} {
			if updateError := runWithRetries(executionContext, environment, gitDir, arguments...); updateError != nil {
				return PushResult{}, updateError
			}
		}
	}

	fileName := fmt.Sprintf(rawChangelogTemplateConstant, configuration.Git.Branch)
	destination := filepath.Join(gitDir, fileName)
	if copyError := copyFile(changelogPath, destination); copyError != nil {
		return PushResult{}, buildtoolerrors.NewConfigError(fmt.Sprintf(copyChangelogTemplateConstant, changelogPath, destination), copyError)
	}

	if addError := runWithRetries(executionContext, environment, gitDir, "add", fileName); addError != nil {
		return PushResult{}, addError
	}
	if _, commitError := environment.Git.CheckCommitOrNoChanges(executionContext, gitDir, "-a", "-m", fmt.Sprintf(gistCommitTemplateConstant, fileName)); commitError != nil {
		return PushResult{}, commitError
	}

	environment.Logger.Debug(pushingGistMessageConstant, zap.String(logFieldGitDirConstant, gitDir))
	if configuration.Git.NeverPush {
		environment.Logger.Warn(neverPushGistMessageConstant, zap.String(logFieldGitDirConstant, gitDir))
	} else if pushError := runWithRetries(executionContext, environment, gitDir, "push", originRemoteNameConstant, gistMasterBranchConstant); pushError != nil {
		return PushResult{}, pushError
	}
	return PushResult{GistDir: gitDir, FileName: fileName}, nil
}

func runWithRetries(executionContext context.Context, environment dependencies.Environment, gitDir string, arguments ...string) error {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = retryInitialIntervalConstant
	exponential.MaxInterval = retryMaxIntervalConstant

	_, retryError := backoff.Retry(
		executionContext,
		func() (string, error) {
			return environment.Git.Run(executionContext, gitDir, arguments...)
		},
		backoff.WithBackOff(exponential),
		backoff.WithMaxElapsedTime(retryMaxElapsedTimeConstant),
		backoff.WithNotify(func(notifyError error, delay time.Duration) {
			environment.Logger.Warn(
				retryingGitMessageConstant,
				zap.String(logFieldGitDirConstant, gitDir),
				zap.Strings(logFieldCommandConstant, arguments),
				zap.Duration(logFieldDelayConstant, delay),
				zap.Error(notifyError),
			)
		}),
	)
	return retryError
}

func copyFile(source string, destination string) error {
	content, readError := os.ReadFile(source)
	if readError != nil {
		return readError
	}
	return os.WriteFile(destination, content, outputFilePermissionsConstant)
}
