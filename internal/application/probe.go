package application

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

// maxReasonLen bounds the raw stderr kept on unclassified failures.
const maxReasonLen = 200

// ProbeRule maps a case-insensitive stderr substring to a status.
type ProbeRule struct {
	Pattern string
	Status  model.CredentialStatus
	Reason  string
}

// DefaultProbeRules are checked in order; the first match wins.
var DefaultProbeRules = []ProbeRule{
	{Pattern: "sign in to confirm", Status: model.CredentialStatusBlocked, Reason: "bot detection triggered"},
	{Pattern: "cookies are no longer valid", Status: model.CredentialStatusExpired, Reason: "cookies expired or invalid"},
	{Pattern: "login required", Status: model.CredentialStatusExpired, Reason: "cookies expired or invalid"},
	{Pattern: "http error 403", Status: model.CredentialStatusBlocked, Reason: "access forbidden"},
}

// Classifier turns a finished extractor run into a ProbeOutcome.
type Classifier struct {
	rules []ProbeRule
}

// NewClassifier builds a classifier from DefaultProbeRules followed by one
// blocked rule per extra marker.
func NewClassifier(extraBlockMarkers []string) *Classifier {
	rules := make([]ProbeRule, 0, len(DefaultProbeRules)+len(extraBlockMarkers))
	rules = append(rules, DefaultProbeRules...)
	for _, m := range extraBlockMarkers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		rules = append(rules, ProbeRule{
			Pattern: m,
			Status:  model.CredentialStatusBlocked,
			Reason:  "block marker matched: " + m,
		})
	}
	return &Classifier{rules: rules}
}

// Classify applies the rules to res.
func (c *Classifier) Classify(res model.ProcessResult) model.ProbeOutcome {
	if res.TimedOut {
		return model.ProbeOutcome{Status: model.CredentialStatusError, Reason: "probe timeout"}
	}
	if res.ExitCode == 0 {
		return model.ProbeOutcome{Status: model.CredentialStatusActive}
	}

	msg := failureText(res)
	lower := strings.ToLower(msg)
	for _, r := range c.rules {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return model.ProbeOutcome{Status: r.Status, Reason: r.Reason}
		}
	}

	return model.ProbeOutcome{Status: model.CredentialStatusError, Reason: truncate(msg, maxReasonLen)}
}

// failureText picks the most useful diagnostic from a failed run.
func failureText(res model.ProcessResult) string {
	if s := strings.TrimSpace(res.Stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(res.Stdout); s != "" {
		return s
	}
	return fmt.Sprintf("process exited with code %d", res.ExitCode)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// HealthProbe runs the extraction tool in metadata-only mode against one of a
// few stable targets, picked at random so no single target is hammered.
type HealthProbe struct {
	runner     driven.ProcessRunner
	classifier *Classifier
	extractor  string
	targets    []string
	timeout    time.Duration
}

// NewHealthProbe creates a HealthProbe. targets are full URLs.
func NewHealthProbe(
	runner driven.ProcessRunner,
	classifier *Classifier,
	extractor string,
	targets []string,
	timeout time.Duration,
) *HealthProbe {
	return &HealthProbe{
		runner:     runner,
		classifier: classifier,
		extractor:  extractor,
		targets:    targets,
		timeout:    timeout,
	}
}

// Probe checks the credential file at credentialPath. It never returns an
// error; a process that cannot be started is classified as an error outcome.
func (p *HealthProbe) Probe(ctx context.Context, credentialPath string) model.ProbeOutcome {
	if len(p.targets) == 0 {
		return model.ProbeOutcome{Status: model.CredentialStatusError, Reason: "no probe targets configured"}
	}
	target := p.targets[rand.IntN(len(p.targets))]

	res, err := p.runner.Run(ctx, driven.Command{
		Path: p.extractor,
		Args: []string{
			"--cookies", credentialPath,
			"--dump-json",
			"--no-warnings",
			"--quiet",
			target,
		},
		Timeout: p.timeout,
	})
	if err != nil {
		return model.ProbeOutcome{Status: model.CredentialStatusError, Reason: truncate(err.Error(), maxReasonLen)}
	}

	return p.classifier.Classify(res)
}
