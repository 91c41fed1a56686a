package dependencies

import (
	"context"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/execshell"
	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/metrics"
	"github.com/spinnaker/buildtool/internal/ui"
)

const defaultHTTPTimeoutConstant = 30 * time.Second

// ToolExecutor runs every external program the release commands drive.
type ToolExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecuteGsutil(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecuteGcloud(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecuteRegctl(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// HTTPClient performs the few HTTP requests the release commands make.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// EnvironmentLookup reads a process environment variable.
type EnvironmentLookup func(name string) (string, bool)

// ResolveToolExecutor returns the provided executor or constructs a shell-backed default.
// Human-readable logging adds console lines for every subprocess.
func ResolveToolExecutor(existing ToolExecutor, logger *zap.Logger, humanReadableLogging bool) (ToolExecutor, error) {
	if existing != nil {
		return existing, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	commandRunner := execshell.NewOSCommandRunner()
	if humanReadableLogging {
		return execshell.NewShellExecutorWithObserver(logger, commandRunner, ui.NewConsoleCommandEventLogger(logger))
	}
	return execshell.NewShellExecutor(logger, commandRunner)
}

// ResolveGitRunner constructs a git runner over executor.
func ResolveGitRunner(executor gitrunner.GitExecutor, logger *zap.Logger, options gitrunner.Options) (*gitrunner.Runner, error) {
	return gitrunner.NewRunner(logger, executor, options)
}

// ResolveRegistry returns the provided registry or one that never flushes.
func ResolveRegistry(existing *metrics.Registry) *metrics.Registry {
	if existing != nil {
		return existing
	}
	return metrics.NewDisabledRegistry()
}

// ResolveHTTPClient returns the provided client or a client with a bounded timeout.
func ResolveHTTPClient(existing HTTPClient) HTTPClient {
	if existing != nil {
		return existing
	}
	return &http.Client{Timeout: defaultHTTPTimeoutConstant}
}

// ResolveEnvironmentLookup returns the provided lookup or the process environment.
func ResolveEnvironmentLookup(existing EnvironmentLookup) EnvironmentLookup {
	if existing != nil {
		return existing
	}
	return os.LookupEnv
}

// ResolveClock returns the provided clock or the wall clock.
func ResolveClock(existing func() time.Time) func() time.Time {
	if existing != nil {
		return existing
	}
	return time.Now
}

// CommandArguments builds command details from a plain argument list.
func CommandArguments(arguments ...string) execshell.CommandDetails {
	return execshell.CommandDetails{Arguments: arguments}
}
