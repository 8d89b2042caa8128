package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cookiepool/internal/application"
	"github.com/ericfisherdev/cookiepool/internal/domain/model"
)

func TestClassifier_Classify(t *testing.T) {
	c := application.NewClassifier([]string{"  ", "Rate-limited by platform"})

	tests := []struct {
		name       string
		res        model.ProcessResult
		wantStatus model.CredentialStatus
		wantReason string
	}{
		{
			name:       "clean exit is active",
			res:        model.ProcessResult{ExitCode: 0, Stderr: "Sign in to confirm"},
			wantStatus: model.CredentialStatusActive,
		},
		{
			name:       "timeout is error",
			res:        model.ProcessResult{ExitCode: -1, TimedOut: true, Stderr: "HTTP Error 403"},
			wantStatus: model.CredentialStatusError,
			wantReason: "probe timeout",
		},
		{
			name:       "bot challenge",
			res:        model.ProcessResult{ExitCode: 1, Stderr: "ERROR: [youtube] x: Sign in to confirm you're not a bot"},
			wantStatus: model.CredentialStatusBlocked,
			wantReason: "bot detection triggered",
		},
		{
			name:       "expired cookies",
			res:        model.ProcessResult{ExitCode: 1, Stderr: "WARNING: The provided YouTube account cookies are no longer valid"},
			wantStatus: model.CredentialStatusExpired,
			wantReason: "cookies expired or invalid",
		},
		{
			name:       "login required",
			res:        model.ProcessResult{ExitCode: 1, Stderr: "ERROR: Login required"},
			wantStatus: model.CredentialStatusExpired,
			wantReason: "cookies expired or invalid",
		},
		{
			name:       "forbidden",
			res:        model.ProcessResult{ExitCode: 1, Stderr: "ERROR: unable to download video data: HTTP Error 403: Forbidden"},
			wantStatus: model.CredentialStatusBlocked,
			wantReason: "access forbidden",
		},
		{
			name:       "bot marker wins over 403",
			res:        model.ProcessResult{ExitCode: 1, Stderr: "HTTP Error 403 ... sign in to confirm"},
			wantStatus: model.CredentialStatusBlocked,
			wantReason: "bot detection triggered",
		},
		{
			name:       "extra configured marker",
			res:        model.ProcessResult{ExitCode: 1, Stderr: "error: RATE-LIMITED BY PLATFORM"},
			wantStatus: model.CredentialStatusBlocked,
			wantReason: "block marker matched: Rate-limited by platform",
		},
		{
			name:       "unknown error keeps raw stderr",
			res:        model.ProcessResult{ExitCode: 2, Stderr: "ERROR: Unsupported URL\n"},
			wantStatus: model.CredentialStatusError,
			wantReason: "ERROR: Unsupported URL",
		},
		{
			name:       "falls back to stdout",
			res:        model.ProcessResult{ExitCode: 2, Stdout: "something odd"},
			wantStatus: model.CredentialStatusError,
			wantReason: "something odd",
		},
		{
			name:       "no output at all",
			res:        model.ProcessResult{ExitCode: 137},
			wantStatus: model.CredentialStatusError,
			wantReason: "process exited with code 137",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.res)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestClassifier_TruncatesUnknownErrors(t *testing.T) {
	c := application.NewClassifier(nil)
	got := c.Classify(model.ProcessResult{ExitCode: 1, Stderr: strings.Repeat("x", 500)})
	assert.Equal(t, model.CredentialStatusError, got.Status)
	assert.Len(t, got.Reason, 200)
}

func TestHealthProbe_BotMarkerIsBlocked(t *testing.T) {
	runner := &scriptedRunner{results: map[string]model.ProcessResult{
		"/cookies/a.txt": {ExitCode: 1, Stderr: "ERROR: Sign in to confirm you're not a bot"},
	}}
	probe := application.NewHealthProbe(runner, application.NewClassifier(nil), "yt-dlp",
		[]string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}, 15*time.Second)

	got := probe.Probe(context.Background(), "/cookies/a.txt")

	assert.Equal(t, model.CredentialStatusBlocked, got.Status)
	assert.NotEmpty(t, got.Reason)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "yt-dlp", call.Path)
	assert.Equal(t, 15*time.Second, call.Timeout)
	assert.Contains(t, call.Args, "--dump-json")
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", call.Args[len(call.Args)-1])
}

func TestHealthProbe_StartFailureIsError(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("exec: \"yt-dlp\": executable file not found in $PATH")}
	probe := application.NewHealthProbe(runner, application.NewClassifier(nil), "yt-dlp",
		[]string{"https://example.com/v"}, time.Second)

	got := probe.Probe(context.Background(), "/cookies/a.txt")
	assert.Equal(t, model.CredentialStatusError, got.Status)
	assert.Contains(t, got.Reason, "executable file not found")
}

func TestHealthProbe_NoTargets(t *testing.T) {
	probe := application.NewHealthProbe(&scriptedRunner{}, application.NewClassifier(nil), "yt-dlp", nil, time.Second)
	got := probe.Probe(context.Background(), "/cookies/a.txt")
	assert.Equal(t, model.CredentialStatusError, got.Status)
}
