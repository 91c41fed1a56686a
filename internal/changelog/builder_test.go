package changelog_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/changelog"
	"github.com/spinnaker/buildtool/internal/repository"
)

func commit(commitID string, message string) repository.CommitMessage {
	return repository.CommitMessage{CommitID: commitID, Author: "Dev <dev@example.com>", Date: "Mon Jan 1 00:00:00 2024 +0000", Message: message}
}

func TestPartitionCommitsChoosesFirstMatchingKind(testInstance *testing.T) {
	testCases := []struct {
		name      string
		message   string
		partition string
	}{
		{name: "BreakingChangeWinsOverFix", message: "fix(orca): retry stages\n\nBREAKING CHANGE: removes the old retry flag", partition: changelog.BreakingChangesPartition},
		{name: "Feature", message: "feat(deck): add a button", partition: changelog.FeaturesPartition},
		{name: "FeatureSpelledOut", message: "feature: add a pipeline", partition: changelog.FeaturesPartition},
		{name: "Configuration", message: "config(gate): raise timeouts", partition: changelog.ConfigurationPartition},
		{name: "Fix", message: "fix(clouddriver): handle nil accounts", partition: changelog.FixesPartition},
		{name: "Bug", message: "bug: stop leaking threads", partition: changelog.FixesPartition},
		{name: "BulletedFix", message: "  * fix(echo): quiet notifications", partition: changelog.FixesPartition},
		{name: "Other", message: "chore(build): bump gradle", partition: changelog.OtherPartition},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			data := changelog.RepositoryData{NormalizedMessages: []repository.CommitMessage{commit("abc", testCase.message)}}

			partitions := data.PartitionCommits(true)

			require.Len(testInstance, partitions, 1)
			require.Equal(testInstance, testCase.partition, partitions[0].Title)
		})
	}
}

func TestPartitionCommitsOrdersKindsBySignificance(testInstance *testing.T) {
	data := changelog.RepositoryData{NormalizedMessages: []repository.CommitMessage{
		commit("1", "chore: tidy"),
		commit("2", "fix(a): one"),
		commit("3", "feat(b): two"),
		commit("4", "BREAKING CHANGE: three"),
	}}

	partitions := data.PartitionCommits(false)

	titles := make([]string, 0, len(partitions))
	for _, partition := range partitions {
		titles = append(titles, partition.Title)
	}
	require.Equal(testInstance, []string{changelog.BreakingChangesPartition, changelog.FeaturesPartition, changelog.FixesPartition, changelog.OtherPartition}, titles)
}

func TestSortPartitionGroupsByThingStably(testInstance *testing.T) {
	messages := []repository.CommitMessage{
		commit("1", "fix(orca): first orca"),
		commit("2", "fix(deck): first deck"),
		commit("3", "fix: no thing"),
		commit("4", "fix(orca): second orca"),
		commit("5", "fix(deck): second deck"),
	}

	sorted := changelog.SortPartition(messages)

	identifiers := make([]string, 0, len(sorted))
	for _, message := range sorted {
		identifiers = append(identifiers, message.CommitID)
	}
	require.Equal(testInstance, []string{"3", "2", "5", "1", "4"}, identifiers)
}

func TestCleanMessage(testInstance *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected string
	}{
		{name: "TrailingPullRequest", text: "fix(orca): retry (#1234)", expected: "fix(orca): retry"},
		{name: "WithBody", text: "fix(orca): retry (#1234)\n\nbody (#99)", expected: "fix(orca): retry\n\nbody (#99)"},
		{name: "NoPullRequest", text: "fix(orca): retry", expected: "fix(orca): retry"},
		{name: "PullRequestNotTrailing", text: "fix(orca): (#12) retry", expected: "fix(orca): (#12) retry"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, changelog.CleanMessage(testCase.text))
		})
	}
}

func TestBuildRendersRepositoriesInNameOrder(testInstance *testing.T) {
	builder := changelog.NewBuilder(zap.NewNop(), changelog.BuilderOptions{WithPartition: true})
	builder.AddRepository(
		repository.Spec{Name: "orca", Origin: "https://github.com/spinnaker/orca"},
		repository.RepositorySummary{Version: "8.1.0", CommitMessages: []repository.CommitMessage{
			commit("0123456789abcdef", "feat(stages): wait for manual judgment (#4321)"),
			commit("fedcba9876543210", "fix(tasks): retry on timeout"),
		}},
	)
	builder.AddRepository(repository.Spec{Name: "rosco", Origin: "https://github.com/spinnaker/rosco"}, repository.RepositorySummary{Version: "1.0.0"})
	builder.AddRepository(
		repository.Spec{Name: "deck", Origin: "https://github.com/spinnaker/deck"},
		repository.RepositorySummary{Version: "3.2.1", CommitMessages: []repository.CommitMessage{commit("aaaaaaaaaaaa", "Update readme")}},
	)

	expected := strings.Join([]string{
		"## [Deck](#deck) 3.2.1",
		"",
		"#### Other",
		"",
		"* Update readme ([aaaaaaaa](https://github.com/spinnaker/deck/commit/aaaaaaaaaaaa))",
		"",
		"## [Orca](#orca) 8.1.0",
		"",
		"#### Features",
		"",
		"* **stages:**  wait for manual judgment ([01234567](https://github.com/spinnaker/orca/commit/0123456789abcdef))",
		"",
		"#### Fixes",
		"",
		"* **tasks:**  retry on timeout ([fedcba98](https://github.com/spinnaker/orca/commit/fedcba9876543210))",
		"",
	}, "\n")
	require.Equal(testInstance, expected, builder.Build())
}

func TestBuildWithDetailWritesCategoryHeadings(testInstance *testing.T) {
	builder := changelog.NewBuilder(zap.NewNop(), changelog.BuilderOptions{WithPartition: true, WithDetail: true})
	builder.AddRepository(
		repository.Spec{Name: "gate", Origin: "https://github.com/spinnaker/gate"},
		repository.RepositorySummary{Version: "6.0.0", CommitMessages: []repository.CommitMessage{
			commit("1111111111111111", "fix(auth): refresh tokens (#77)\n\nBREAKING CHANGE: sessions expire"),
		}},
	)

	rendered := builder.Build()

	require.Contains(testInstance, rendered, "### Changes by Type\n#### Breaking Changes\n")
	require.Contains(testInstance, rendered, "* **auth:**  refresh tokens ([11111111](https://github.com/spinnaker/gate/commit/1111111111111111))")
	require.Contains(testInstance, rendered, "### Changes by Sequence\n**MAJOR** ([11111111](https://github.com/spinnaker/gate/commit/1111111111111111))\nfix(auth): refresh tokens\n\nBREAKING CHANGE: sessions expire\n")
}

func TestBuildDetailOnlyOmitsCategoryHeadings(testInstance *testing.T) {
	builder := changelog.NewBuilder(zap.NewNop(), changelog.BuilderOptions{WithDetail: true})
	builder.AddRepository(
		repository.Spec{Name: "echo", Origin: "https://github.com/spinnaker/echo"},
		repository.RepositorySummary{Version: "2.0.1", CommitMessages: []repository.CommitMessage{commit("2222222222222222", "docs: typo")}},
	)

	rendered := builder.Build()

	require.NotContains(testInstance, rendered, "### Changes by")
	require.NotContains(testInstance, rendered, "####")
	require.Equal(testInstance, "## [Echo](#echo) 2.0.1\n\n**PATCH** ([22222222](https://github.com/spinnaker/echo/commit/2222222222222222))\ndocs: typo\n", rendered)
}
