// Package chromium implements the session warmer with a headless Chrome
// driven over the DevTools protocol.
package chromium

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"k8s.io/utils/clock"

	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SessionWarmer = (*Warmer)(nil)

const ephemeralPrefix = "ephemeral_"

var errNoSessionCookies = errors.New("browser produced no session cookies")

// Config configures the Warmer.
type Config struct {
	// ExecPath overrides Chrome discovery when set.
	ExecPath string
	// ProfileDir is a persistent user data dir. A profile that is already
	// signed in yields authenticated cookies.
	ProfileDir string
	// Dir receives the ephemeral cookie files.
	Dir string
	// Timeout bounds a whole warm-up, browser start included.
	Timeout time.Duration
	// Domains limits which cookies are exported.
	Domains []string
	// MaxAge is the age past which leftover ephemeral files are swept.
	MaxAge time.Duration
}

// DefaultDomains are the cookie domains the extraction tool needs.
var DefaultDomains = []string{"youtube.com", "google.com"}

type cookieSource func(ctx context.Context, targetURL string) ([]*network.Cookie, error)

// Warmer mints ephemeral credentials by loading the target in Chrome and
// exporting the resulting cookies.
type Warmer struct {
	cfg     Config
	clock   clock.PassiveClock
	cookies cookieSource
}

// NewWarmer creates the ephemeral directory and returns a Warmer.
func NewWarmer(cfg Config, clk clock.PassiveClock) (*Warmer, error) {
	if len(cfg.Domains) == 0 {
		cfg.Domains = DefaultDomains
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create ephemeral directory %q: %w", cfg.Dir, err)
	}

	w := &Warmer{cfg: cfg, clock: clk}
	w.cookies = w.browserCookies
	return w, nil
}

// WarmSession loads targetURL in a browser and writes its cookies to a new
// file in the ephemeral directory. The caller owns the returned file.
func (w *Warmer) WarmSession(ctx context.Context, targetURL string) (string, error) {
	w.sweep()

	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	start := w.clock.Now()
	cookies, err := w.cookies(ctx, targetURL)
	if err != nil {
		return "", fmt.Errorf("warm session: %w", err)
	}
	cookies = filterCookies(cookies, w.cfg.Domains)
	if len(cookies) == 0 {
		return "", fmt.Errorf("warm session: %w", errNoSessionCookies)
	}

	path, err := w.writeEphemeral(cookies)
	if err != nil {
		return "", err
	}

	slog.Info("browser session warmed",
		"cookies", len(cookies), "path", path, "duration", w.clock.Since(start))
	return path, nil
}

func (w *Warmer) writeEphemeral(cookies []*network.Cookie) (string, error) {
	f, err := os.CreateTemp(w.cfg.Dir, ephemeralPrefix+"*.txt")
	if err != nil {
		return "", fmt.Errorf("create ephemeral credential: %w", err)
	}

	if err := writeNetscape(f, cookies); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write ephemeral credential: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close ephemeral credential: %w", err)
	}
	return f.Name(), nil
}

// sweep removes ephemeral files left behind past MaxAge, e.g. by a restart
// that dropped their scheduled deletion.
func (w *Warmer) sweep() {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		slog.Warn("failed to list ephemeral credentials", "error", err)
		return
	}

	cutoff := w.clock.Now().Add(-w.cfg.MaxAge)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), ephemeralPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(w.cfg.Dir, e.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to sweep ephemeral credential", "path", path, "error", err)
			continue
		}
		slog.Debug("swept stale ephemeral credential", "path", path)
	}
}

// browserCookies starts Chrome, navigates to targetURL and polls until cookies
// for the configured domains appear.
func (w *Warmer) browserCookies(ctx context.Context, targetURL string) ([]*network.Cookie, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if w.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(w.cfg.ExecPath))
	}
	if w.cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(w.cfg.ProfileDir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx, network.Enable(), chromedp.Navigate(targetURL)); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", targetURL, err)
	}

	urls := []string{targetURL}
	for _, d := range w.cfg.Domains {
		urls = append(urls, "https://www."+d)
	}

	var cookies []*network.Cookie
	poll := func() error {
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs(urls).Do(ctx)
			return err
		}))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read cookies: %w", err))
		}
		if len(filterCookies(cookies, w.cfg.Domains)) == 0 {
			return errNoSessionCookies
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	if err := backoff.Retry(poll, backoff.WithContext(b, browserCtx)); err != nil {
		return nil, err
	}
	return cookies, nil
}
