package chromium

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestDomainAllowed(t *testing.T) {
	allowed := []string{"youtube.com", "google.com"}

	tests := []struct {
		domain string
		want   bool
	}{
		{".youtube.com", true},
		{"www.youtube.com", true},
		{"youtube.com", true},
		{".accounts.google.com", true},
		{"notyoutube.com", false},
		{"youtube.com.evil.example", false},
		{"", false},
		{".", false},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, domainAllowed(tt.domain, allowed))
		})
	}
}

func TestWriteNetscape(t *testing.T) {
	cookies := []*network.Cookie{
		{Name: "SID", Value: "abc", Domain: ".youtube.com", Path: "/", Secure: true, Expires: 1893456000},
		{Name: "PREF", Value: "x=1", Domain: "www.youtube.com", Session: true, Expires: -1},
	}

	var buf bytes.Buffer
	require.NoError(t, writeNetscape(&buf, cookies))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "# Netscape HTTP Cookie File", lines[0])
	assert.Equal(t, ".youtube.com\tTRUE\t/\tTRUE\t1893456000\tSID\tabc", lines[2])
	assert.Equal(t, "www.youtube.com\tFALSE\t/\tFALSE\t\tPREF\tx=1", lines[3])
}

func newTestWarmer(t *testing.T, source cookieSource) (*Warmer, *clocktesting.FakeClock) {
	t.Helper()
	clk := clocktesting.NewFakeClock(time.Now())
	w, err := NewWarmer(Config{Dir: filepath.Join(t.TempDir(), "ephemeral"), Timeout: time.Second}, clk)
	require.NoError(t, err)
	w.cookies = source
	return w, clk
}

func TestWarmer_WarmSessionWritesFilteredCookies(t *testing.T) {
	w, _ := newTestWarmer(t, func(_ context.Context, _ string) ([]*network.Cookie, error) {
		return []*network.Cookie{
			{Name: "SID", Value: "abc", Domain: ".youtube.com", Path: "/"},
			{Name: "tracker", Value: "t", Domain: ".ads.example"},
		}, nil
	})

	path, err := w.WarmSession(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), ephemeralPrefix))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Netscape HTTP Cookie File")
	assert.Contains(t, string(data), "\tSID\tabc")
	assert.NotContains(t, string(data), "tracker")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWarmer_NoUsableCookies(t *testing.T) {
	w, _ := newTestWarmer(t, func(_ context.Context, _ string) ([]*network.Cookie, error) {
		return []*network.Cookie{{Name: "x", Value: "y", Domain: "other.example"}}, nil
	})

	_, err := w.WarmSession(context.Background(), "https://www.youtube.com/")
	require.ErrorIs(t, err, errNoSessionCookies)

	entries, err := os.ReadDir(w.cfg.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWarmer_SourceError(t *testing.T) {
	w, _ := newTestWarmer(t, func(_ context.Context, _ string) ([]*network.Cookie, error) {
		return nil, errors.New("chrome failed to start")
	})

	_, err := w.WarmSession(context.Background(), "https://www.youtube.com/")
	assert.ErrorContains(t, err, "chrome failed to start")
}

func TestWarmer_AppliesTimeout(t *testing.T) {
	w, _ := newTestWarmer(t, func(ctx context.Context, _ string) ([]*network.Cookie, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "warm-up must run under a deadline")
		return nil, ctx.Err()
	})
	_, _ = w.WarmSession(context.Background(), "https://www.youtube.com/")
}

func TestWarmer_SweepsStaleEphemeralFiles(t *testing.T) {
	w, clk := newTestWarmer(t, func(_ context.Context, _ string) ([]*network.Cookie, error) {
		return []*network.Cookie{{Name: "SID", Value: "abc", Domain: ".youtube.com"}}, nil
	})

	stale := filepath.Join(w.cfg.Dir, ephemeralPrefix+"old.txt")
	fresh := filepath.Join(w.cfg.Dir, ephemeralPrefix+"new.txt")
	other := filepath.Join(w.cfg.Dir, "keep.txt")
	for _, p := range []string{stale, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	old := clk.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	_, err := w.WarmSession(context.Background(), "https://www.youtube.com/")
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}
