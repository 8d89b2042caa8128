package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

// ExtractError is a failed extractor run, classified like a probe.
type ExtractError struct {
	Status model.CredentialStatus
	Reason string
	Result model.ProcessResult
}

func (e *ExtractError) Error() string {
	return e.Reason
}

// Extractor invokes the external extraction tool with a credential attached.
type Extractor struct {
	runner     driven.ProcessRunner
	classifier *Classifier
	path       string
	timeout    time.Duration
}

// NewExtractor creates a new Extractor.
func NewExtractor(runner driven.ProcessRunner, classifier *Classifier, path string, timeout time.Duration) *Extractor {
	return &Extractor{
		runner:     runner,
		classifier: classifier,
		path:       path,
		timeout:    timeout,
	}
}

// ExtractorRun is one logical extraction. Attempt is an Operation and may be
// called several times with different credentials; Result holds the output of
// the last successful call.
type ExtractorRun struct {
	extractor *Extractor
	args      []string
	Result    model.ProcessResult
}

// Run prepares an extraction with args placed after the --cookies flag.
func (e *Extractor) Run(args ...string) *ExtractorRun {
	return &ExtractorRun{extractor: e, args: args}
}

// Attempt runs the tool once with the credential at credentialPath.
func (r *ExtractorRun) Attempt(ctx context.Context, credentialPath string) error {
	args := make([]string, 0, len(r.args)+2)
	args = append(args, "--cookies", credentialPath)
	args = append(args, r.args...)

	res, err := r.extractor.runner.Run(ctx, driven.Command{
		Path:    r.extractor.path,
		Args:    args,
		Timeout: r.extractor.timeout,
	})
	if err != nil {
		return fmt.Errorf("start extractor: %w", err)
	}
	if res.Succeeded() {
		r.Result = res
		return nil
	}

	if res.TimedOut {
		return &ExtractError{Status: model.CredentialStatusError, Reason: "extractor timeout", Result: res}
	}

	outcome := r.extractor.classifier.Classify(res)
	return &ExtractError{Status: outcome.Status, Reason: outcome.Reason, Result: res}
}

// Resolution is the result of resolving a media URL through the fallback chain.
type Resolution struct {
	model.FallbackResult
	Output string
}

// Resolver fetches media metadata for a URL using whichever credential tier works.
type Resolver struct {
	orchestrator *FallbackOrchestrator
	extractor    *Extractor
}

// NewResolver creates a new Resolver.
func NewResolver(orchestrator *FallbackOrchestrator, extractor *Extractor) *Resolver {
	return &Resolver{orchestrator: orchestrator, extractor: extractor}
}

// Resolve runs the extractor in metadata mode against url.
func (r *Resolver) Resolve(ctx context.Context, url string) (Resolution, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Resolution{}, model.ErrEmptyURL
	}

	run := r.extractor.Run("--dump-json", "--no-warnings", "--no-download", url)
	result, err := r.orchestrator.Execute(ctx, url, run.Attempt)
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{FallbackResult: result, Output: run.Result.Stdout}, nil
}
