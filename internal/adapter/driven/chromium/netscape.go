package chromium

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/network"
)

// domainAllowed reports whether a cookie domain belongs to one of the allowed
// registrable domains, including subdomains.
func domainAllowed(domain string, allowed []string) bool {
	d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	if d == "" {
		return false
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimPrefix(a, "."))
		if d == a || strings.HasSuffix(d, "."+a) {
			return true
		}
	}
	return false
}

// filterCookies keeps cookies whose domain is allowed.
func filterCookies(cookies []*network.Cookie, allowed []string) []*network.Cookie {
	var out []*network.Cookie
	for _, c := range cookies {
		if c != nil && domainAllowed(c.Domain, allowed) {
			out = append(out, c)
		}
	}
	return out
}

// writeNetscape writes cookies in the Netscape cookie-file format read by the
// extraction tool.
func writeNetscape(w io.Writer, cookies []*network.Cookie) error {
	if _, err := fmt.Fprintln(w, "# Netscape HTTP Cookie File"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "# Ephemeral session generated by cookiepool. DO NOT EDIT."); err != nil {
		return err
	}

	for _, c := range cookies {
		includeSubdomains := "FALSE"
		if strings.HasPrefix(c.Domain, ".") {
			includeSubdomains = "TRUE"
		}
		secure := "FALSE"
		if c.Secure {
			secure = "TRUE"
		}
		path := c.Path
		if path == "" {
			path = "/"
		}

		// Session cookies get an empty expiry; "0" would read as already expired.
		expires := ""
		if !c.Session && c.Expires > 0 {
			expires = strconv.FormatInt(int64(c.Expires), 10)
		}

		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Domain, includeSubdomains, path, secure, expires, c.Name, c.Value); err != nil {
			return err
		}
	}
	return nil
}
