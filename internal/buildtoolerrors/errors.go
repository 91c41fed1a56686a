package buildtoolerrors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/execshell"
)

const (
	// ErrorCounterName is the counter incremented for every reported error.
	ErrorCounterName = "BuildtoolError"

	errorLinePrefixConstant          = "*** ERROR ***: "
	wrappedMessageTemplateConstant   = "%s: %v"
	missingOptionsTemplateConstant   = "%s requires options that are not set: %s"
	pathNotFoundTemplateConstant     = "NotFound: %q for %s"
	configCauseConstant              = "config"
	unexpectedCauseConstant          = "unexpected"
	timeoutCauseConstant             = "timeout"
	labelCauseConstant               = "cause"
	labelClassificationConstant      = "classification"
	reportedMessageConstant          = "error reported"
	propagatingMessageConstant       = "propagating error"
	logFieldWhereConstant            = "where"
	logFieldKindConstant             = "kind"
	logFieldClassificationConstant   = "classification"
	missingOptionsSeparatorConstant  = ", "
	unexpectedFailureMessageConstant = "unexpected failure"
	executionFailureMessageConstant  = "command failed"
	timeoutFailureMessageConstant    = "operation timed out"
)

// Kind names the category of failure.
type Kind string

// Supported error kinds.
const (
	KindConfig     Kind = Kind("ConfigError")
	KindTimeout    Kind = Kind("TimeoutError")
	KindExecution  Kind = Kind("ExecutionError")
	KindResponse   Kind = Kind("ResponseError")
	KindUnexpected Kind = Kind("UnexpectedError")
)

// Classification groups kinds by who is expected to act on them.
type Classification string

// Supported classifications.
const (
	ClassificationRuntime  Classification = Classification("runtime")
	ClassificationUsage    Classification = Classification("usage")
	ClassificationInternal Classification = Classification("internal")
)

// CounterRecorder is the subset of the metrics registry needed to count errors.
type CounterRecorder interface {
	IncrementCounter(name string, labels map[string]string)
}

// Error is a classified failure. The reported flag records whether it was already logged.
type Error struct {
	Kind           Kind
	Classification Classification
	Message        string
	Cause          string
	Wrapped        error
	reported       atomic.Bool
}

// Error returns the message, followed by the wrapped error when present.
func (buildtoolError *Error) Error() string {
	if buildtoolError.Wrapped == nil {
		return buildtoolError.Message
	}
	if len(buildtoolError.Message) == 0 {
		return buildtoolError.Wrapped.Error()
	}
	return fmt.Sprintf(wrappedMessageTemplateConstant, buildtoolError.Message, buildtoolError.Wrapped)
}

// Unwrap exposes the wrapped error.
func (buildtoolError *Error) Unwrap() error {
	return buildtoolError.Wrapped
}

// MarkReported flags the error as logged and reports whether this call was the first to do so.
func (buildtoolError *Error) MarkReported() bool {
	return buildtoolError.reported.CompareAndSwap(false, true)
}

// Reported reports whether the error has already been logged.
func (buildtoolError *Error) Reported() bool {
	return buildtoolError.reported.Load()
}

// NewConfigError reports missing or invalid user-supplied configuration.
func NewConfigError(message string, wrapped error) *Error {
	return &Error{Kind: KindConfig, Classification: ClassificationInternal, Message: message, Cause: configCauseConstant, Wrapped: wrapped}
}

// NewTimeoutError reports an external wait that exceeded its budget.
func NewTimeoutError(message string, wrapped error) *Error {
	return &Error{Kind: KindTimeout, Classification: ClassificationRuntime, Message: message, Cause: timeoutCauseConstant, Wrapped: wrapped}
}

// NewExecutionError reports a failed subprocess; program names the executable.
func NewExecutionError(message string, program string, wrapped error) *Error {
	return &Error{Kind: KindExecution, Classification: ClassificationRuntime, Message: message, Cause: program, Wrapped: wrapped}
}

// NewResponseError reports an unexpected response from a remote server.
func NewResponseError(message string, server string, wrapped error) *Error {
	return &Error{Kind: KindResponse, Classification: ClassificationRuntime, Message: message, Cause: server, Wrapped: wrapped}
}

// NewUnexpectedError reports an internal invariant violation.
func NewUnexpectedError(message string, wrapped error) *Error {
	return &Error{Kind: KindUnexpected, Classification: ClassificationInternal, Message: message, Cause: unexpectedCauseConstant, Wrapped: wrapped}
}

// Classify returns err as an *Error, wrapping foreign errors into the closest kind.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var buildtoolError *Error
	if errors.As(err, &buildtoolError) {
		return buildtoolError
	}

	var failedError execshell.CommandFailedError
	if errors.As(err, &failedError) {
		return NewExecutionError(executionFailureMessageConstant, string(failedError.Command.Name), err)
	}

	var executionError execshell.CommandExecutionError
	if errors.As(err, &executionError) {
		return NewExecutionError(executionFailureMessageConstant, string(executionError.Command.Name), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(timeoutFailureMessageConstant, err)
	}

	return NewUnexpectedError(unexpectedFailureMessageConstant, err)
}

// KindOf returns the kind of err, classifying foreign errors.
func KindOf(err error) Kind {
	classified := Classify(err)
	if classified == nil {
		return ""
	}
	return classified.Kind
}

// Report logs err once and counts it, then returns the error to propagate. An err already
// carrying an *Error is returned unchanged so its wrapping context survives; a foreign err is
// returned classified. Subsequent reports of the same error only log that it is propagating.
func Report(logger *zap.Logger, recorder CounterRecorder, where string, err error) error {
	classified := Classify(err)
	if classified == nil {
		return nil
	}
	propagated := error(classified)
	var existing *Error
	if errors.As(err, &existing) {
		propagated = err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if classified.MarkReported() {
		logger.Error(
			reportedMessageConstant,
			zap.String(logFieldWhereConstant, where),
			zap.String(logFieldKindConstant, string(classified.Kind)),
			zap.String(logFieldClassificationConstant, string(classified.Classification)),
			zap.Error(classified),
		)
		if recorder != nil {
			recorder.IncrementCounter(ErrorCounterName, map[string]string{
				labelCauseConstant:          classified.Cause,
				labelClassificationConstant: string(classified.Classification),
			})
		}
	} else {
		logger.Debug(propagatingMessageConstant, zap.String(logFieldWhereConstant, where))
	}

	return propagated
}

// FormatErrorLine renders the single user-visible error line.
func FormatErrorLine(err error) string {
	if err == nil {
		return ""
	}
	return errorLinePrefixConstant + err.Error()
}

// CheckOptionsSet fails with a ConfigError naming every option whose value is empty.
func CheckOptionsSet(where string, options map[string]string) error {
	missingNames := make([]string, 0)
	for name, value := range options {
		if len(strings.TrimSpace(value)) == 0 {
			missingNames = append(missingNames, name)
		}
	}
	if len(missingNames) == 0 {
		return nil
	}
	sort.Strings(missingNames)
	return NewConfigError(fmt.Sprintf(missingOptionsTemplateConstant, where, strings.Join(missingNames, missingOptionsSeparatorConstant)), nil)
}

// CheckPathExists fails with a ConfigError when path does not exist.
func CheckPathExists(path string, why string) error {
	if _, statError := os.Stat(path); statError != nil {
		return NewConfigError(fmt.Sprintf(pathNotFoundTemplateConstant, path, why), statError)
	}
	return nil
}
