package pipeline

import (
	"fmt"
	"net/url"
)

// ValidateExternalURL checks that raw is a well-formed http or https
// URL before the pipeline (or any caller acting on its behalf, e.g. a
// "view on AniList" UI action) opens it. Any other scheme — including
// file://, javascript:, and data: — is rejected, per spec.md §4.A's
// external-URL-open validation.
func ValidateExternalURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url has no host")
	}
	return u, nil
}
