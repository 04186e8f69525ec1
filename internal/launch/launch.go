// Package launch performs open-url actions. Local apps are opened through
// their custom URL scheme, so both cases go through the desktop URL handler.
package launch

import (
	"fmt"
	log "log/slog"
	"net/url"

	"github.com/pkg/browser"
)

// Browser hands URLs to the desktop's default handler.
type Browser struct {
	open func(string) error
}

func NewBrowser() *Browser {
	return &Browser{open: browser.OpenURL}
}

// Open validates raw and opens it. Whether the OS actually handled the scheme
// is not observable.
func (b *Browser) Open(raw string) error {
	u, err := Validate(raw)
	if err != nil {
		return err
	}

	log.Info("Opening URL", "url", u.String())
	return b.open(u.String())
}

// Validate accepts any absolute URL, including opaque ones like "spotify:".
func Validate(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("invalid url %q: missing scheme", raw)
	}
	return u, nil
}
