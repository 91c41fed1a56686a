package changelog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/processor"
	"github.com/spinnaker/buildtool/internal/repository"
	"github.com/spinnaker/buildtool/internal/scm"
)

const (
	// PublishChangelogCommandName names the publish_changelog command.
	PublishChangelogCommandName = "publish_changelog"
	// ChangelogsDirectory holds the published changelogs inside the documentation site repository.
	ChangelogsDirectory = "_changelogs"

	spinnakerVersionOptionConstant   = "spinnaker_version"
	siteBaseBranchConstant           = "master"
	changelogBranchSuffixConstant    = "-changelog"
	changelogFileTemplateConstant    = "%s-changelog.md"
	publishCommitTemplateConstant    = "doc(changelog): Spinnaker Version %s"
	frontMatterTemplateConstant      = "---\ntitle: Version %[1]s.%[2]s\nchangelog_title: Version %[3]s\ndate: %[4]s\ntags: changelogs %[1]s.%[2]s\nversion: %[3]s\n---\n"
	gistScriptTemplateConstant       = "<script src=\"%s.js?file=%s.%s.%d.md\"></script>\n"
	frontMatterTimestampConstant     = "2006-01-02 15:04:05 +0000"
	tagsLinePrefixConstant           = "tags: "
	deprecatedTagSuffixConstant      = " deprecated"
	versionSeparatorConstant         = "."
	versionComponentCountConstant    = 3
	gistFailureTemplateConstant      = "Changelog gist %q: %s"
	gistStatusTemplateConstant       = "HTTP Error %d: %s"
	malformedVersionTemplateConstant = "Spinnaker version %q is not X.Y.Z"
	writeSiteFileTemplateConstant    = "unable to write changelog %s"
	deprecateTemplateConstant        = "unable to deprecate changelog %s"
	verifyingGistMessageConstant     = "Verifying changelog gist exists"
	addingChangelogMessageConstant   = "Adding changelog file"
	deprecatingMessageConstant       = "Deprecating prior version"
	committingMessageConstant        = "Committing changelog into local repository"
	pushingBranchMessageConstant     = "Pushing changelog branch"
	logFieldURLConstant              = "url"
	logFieldBranchConstant           = "branch"
	logFieldOriginConstant           = "origin"
	sitePermissionsConstant          = 0o644
)

// PublishResult describes the change publish_changelog committed to the documentation site.
type PublishResult struct {
	Branch string
	Files  []string
}

type releaseVersion struct {
	major string
	minor string
	patch int
	text  string
}

func parseReleaseVersion(version string) (releaseVersion, error) {
	parts := strings.Split(version, versionSeparatorConstant)
	if len(parts) != versionComponentCountConstant {
		return releaseVersion{}, buildtoolerrors.NewConfigError(fmt.Sprintf(malformedVersionTemplateConstant, version), nil)
	}
	patch, patchError := strconv.Atoi(parts[2])
	if patchError != nil || patch < 0 {
		return releaseVersion{}, buildtoolerrors.NewConfigError(fmt.Sprintf(malformedVersionTemplateConstant, version), patchError)
	}
	return releaseVersion{major: parts[0], minor: parts[1], patch: patch, text: version}, nil
}

func (version releaseVersion) prior() (string, bool) {
	if version.patch == 0 {
		return "", false
	}
	return strings.Join([]string{version.major, version.minor, strconv.Itoa(version.patch - 1)}, versionSeparatorConstant), true
}

// SiteChangelogFileName returns the site file holding the changelog of a Spinnaker version.
func SiteChangelogFileName(version string) string {
	return fmt.Sprintf(changelogFileTemplateConstant, version)
}

// RenderSiteChangelog renders the site page of version: its front matter followed by
// one gist embed per patch of the minor release, newest first.
func RenderSiteChangelog(version string, gistURL string, timestamp string) (string, error) {
	parsed, parseError := parseReleaseVersion(version)
	if parseError != nil {
		return "", parseError
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, frontMatterTemplateConstant, parsed.major, parsed.minor, version, timestamp)
	for patch := parsed.patch; patch >= 0; patch-- {
		fmt.Fprintf(&builder, gistScriptTemplateConstant, gistURL, parsed.major, parsed.minor, patch)
	}
	return builder.String(), nil
}

// DeprecateSiteChangelog marks the tags line of a site page as deprecated.
func DeprecateSiteChangelog(content string) string {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	for index, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if strings.HasPrefix(line, tagsLinePrefixConstant) {
			line += deprecatedTagSuffixConstant
		}
		lines[index] = line
	}
	return strings.Join(lines, "\n") + "\n"
}

// PublishChangelog adds the changelog page of the configured Spinnaker version to the
// documentation site, deprecates the page of the prior patch, and pushes the change.
// The change lands on master only when publishing to master is allowed, otherwise on
// "<version>-changelog", which is reset when it already exists.
func PublishChangelog(executionContext context.Context, environment dependencies.Environment) (PublishResult, error) {
	var result PublishResult
	commandProcessor := processor.NewCommandProcessor(environment.Logger, environment.Registry, PublishChangelogCommandName)
	runError := commandProcessor.Run(executionContext, func(runContext context.Context) error {
		published, publishError := publishChangelog(runContext, environment)
		result = published
		return publishError
	})
	if runError != nil {
		return PublishResult{}, runError
	}
	return result, nil
}

func publishChangelog(executionContext context.Context, environment dependencies.Environment) (PublishResult, error) {
	configuration := environment.Configuration
	if checkError := buildtoolerrors.CheckOptionsSet(PublishChangelogCommandName, map[string]string{
		spinnakerVersionOptionConstant: configuration.SpinnakerVersion,
		gistURLOptionConstant:          configuration.Changelog.GistURL,
	}); checkError != nil {
		return PublishResult{}, checkError
	}
	version, versionError := parseReleaseVersion(configuration.SpinnakerVersion)
	if versionError != nil {
		return PublishResult{}, versionError
	}
	if verifyError := verifyGist(executionContext, environment, configuration.Changelog.GistURL); verifyError != nil {
		return PublishResult{}, verifyError
	}

	branchOptions := configuration.BranchOptions()
	branchOptions.Branch = siteBaseBranchConstant
	branchOptions.FallbackBranch = siteBaseBranchConstant
	manager, managerError := scm.NewBranchManager(environment.Logger, environment.Git, configuration.ManagerOptions(), branchOptions)
	if managerError != nil {
		return PublishResult{}, managerError
	}
	spec, specError := manager.RepositorySpec(repository.GitHubIORepositoryName)
	if specError != nil {
		return PublishResult{}, specError
	}
	if _, statError := os.Stat(spec.GitDir); statError != nil {
		if ensureError := manager.EnsureLocalRepository(executionContext, spec); ensureError != nil {
			return PublishResult{}, ensureError
		}
	}

	files, filesError := prepareSiteFiles(environment, spec, version, configuration.Changelog.GistURL)
	if filesError != nil {
		return PublishResult{}, filesError
	}

	headBranch := version.text + changelogBranchSuffixConstant
	checkoutArguments := []string{"checkout", "-B", headBranch}
	if configuration.Git.AllowPublishMasterBranch {
		headBranch = siteBaseBranchConstant
		checkoutArguments = []string{"checkout", headBranch}
	}

	environment.Logger.Debug(committingMessageConstant, zap.String(logFieldGitDirConstant, spec.GitDir), zap.String(logFieldBranchConstant, headBranch))
	for _, arguments := range [][]string{
		{"fetch", originRemoteNameConstant, siteBaseBranchConstant},
		{"checkout", siteBaseBranchConstant},
		checkoutArguments,
		append([]string{"add"}, files...),
	} {
		if _, runError := environment.Git.Run(executionContext, spec.GitDir, arguments...); runError != nil {
			return PublishResult{}, runError
		}
	}
	if _, commitError := environment.Git.CheckCommitOrNoChanges(executionContext, spec.GitDir, "-m", fmt.Sprintf(publishCommitTemplateConstant, version.text)); commitError != nil {
		return PublishResult{}, commitError
	}

	environment.Logger.Info(pushingBranchMessageConstant, zap.String(logFieldBranchConstant, headBranch), zap.String(logFieldOriginConstant, spec.Origin))
	if pushError := environment.Git.PushBranchToOrigin(executionContext, spec.GitDir, headBranch, false); pushError != nil {
		return PublishResult{}, pushError
	}
	return PublishResult{Branch: headBranch, Files: files}, nil
}

func verifyGist(executionContext context.Context, environment dependencies.Environment, gistURL string) error {
	environment.Logger.Debug(verifyingGistMessageConstant, zap.String(logFieldURLConstant, gistURL))
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, gistURL, nil)
	if requestError != nil {
		return buildtoolerrors.NewConfigError(fmt.Sprintf(gistFailureTemplateConstant, gistURL, requestError.Error()), requestError)
	}
	response, responseError := dependencies.ResolveHTTPClient(environment.HTTPClient).Do(request)
	if responseError != nil {
		return buildtoolerrors.NewConfigError(fmt.Sprintf(gistFailureTemplateConstant, gistURL, responseError.Error()), responseError)
	}
	defer response.Body.Close()
	if response.StatusCode >= http.StatusBadRequest {
		status := fmt.Sprintf(gistStatusTemplateConstant, response.StatusCode, http.StatusText(response.StatusCode))
		return buildtoolerrors.NewConfigError(fmt.Sprintf(gistFailureTemplateConstant, gistURL, status), nil)
	}
	return nil
}

func prepareSiteFiles(environment dependencies.Environment, spec repository.Spec, version releaseVersion, gistURL string) ([]string, error) {
	directory := filepath.Join(spec.GitDir, ChangelogsDirectory)
	targetPath, absoluteError := filepath.Abs(filepath.Join(directory, SiteChangelogFileName(version.text)))
	if absoluteError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(writeSiteFileTemplateConstant, directory), absoluteError)
	}

	timestamp := dependencies.ResolveClock(environment.Clock)().UTC().Format(frontMatterTimestampConstant)
	content, renderError := RenderSiteChangelog(version.text, gistURL, timestamp)
	if renderError != nil {
		return nil, renderError
	}
	environment.Logger.Debug(addingChangelogMessageConstant, zap.String(logFieldPathConstant, targetPath))
	if mkdirError := os.MkdirAll(filepath.Dir(targetPath), outputDirectoryPermissionsConstant); mkdirError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(writeSiteFileTemplateConstant, targetPath), mkdirError)
	}
	if writeError := os.WriteFile(targetPath, []byte(content), sitePermissionsConstant); writeError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(writeSiteFileTemplateConstant, targetPath), writeError)
	}
	files := []string{targetPath}

	priorVersion, hasPrior := version.prior()
	if !hasPrior {
		return files, nil
	}
	priorPath := filepath.Join(filepath.Dir(targetPath), SiteChangelogFileName(priorVersion))
	environment.Logger.Debug(deprecatingMessageConstant, zap.String(logFieldPathConstant, priorPath))
	priorContent, readError := os.ReadFile(priorPath)
	if readError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(deprecateTemplateConstant, priorPath), readError)
	}
	if writeError := os.WriteFile(priorPath, []byte(DeprecateSiteChangelog(string(priorContent))), sitePermissionsConstant); writeError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(deprecateTemplateConstant, priorPath), writeError)
	}
	return append(files, priorPath), nil
}
