package bom

import (
	"context"
	"fmt"

	"github.com/spinnaker/buildtool/internal/execshell"
)

const (
	storageURLTemplateConstant    = "gs://%s/bom/%s.yml"
	gsutilCatCommandConstant      = "cat"
	storageSourceTemplateConstant = "BOM version %s"
)

// StorageExecutor runs gsutil against the bucket holding published BOMs.
type StorageExecutor interface {
	ExecuteGsutil(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// StorageURL is where the BOM for version is published in bucket.
func StorageURL(bucket string, version string) string {
	return fmt.Sprintf(storageURLTemplateConstant, bucket, version)
}

// FetchDocument reads a published BOM from bucket.
func FetchDocument(executionContext context.Context, executor StorageExecutor, bucket string, version string) (*Document, error) {
	result, executionError := executor.ExecuteGsutil(executionContext, execshell.CommandDetails{
		Arguments: []string{gsutilCatCommandConstant, StorageURL(bucket, version)},
	})
	if executionError != nil {
		return nil, executionError
	}
	return ParseDocument([]byte(result.StandardOutput), fmt.Sprintf(storageSourceTemplateConstant, version))
}
