package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
)

// Web lists the hyperlink targets of an HTML index page.
type Web struct {
	Client    *http.Client
	Scheme    string
	Server    string
	UserAgent string
}

// NewWeb returns a Web lister for scheme://server. A nil client uses one
// with DefaultTimeout.
func NewWeb(client *http.Client, scheme, server string) *Web {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if scheme == "" {
		scheme = "https"
	}
	return &Web{Client: client, Scheme: scheme, Server: server}
}

// URL returns the absolute URL of path on this server.
func (w *Web) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return w.Scheme + "://" + w.Server + path
}

// List fetches path and returns the href of every anchor in document order.
func (w *Web) List(ctx context.Context, path string) ([]string, error) {
	log := logger.Logger()
	pageURL := w.URL(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", pageURL, err)
	}
	if w.UserAgent != "" {
		req.Header.Set("User-Agent", w.UserAgent)
	}

	log.Debugf("fetching index %s", pageURL)
	resp, err := w.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil, ctx.Err()
		}
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: GET %s: %v", ErrTimeout, pageURL, err)
		}
		return nil, fmt.Errorf("%w: GET %s: %v", ErrConnection, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: bad status: %s", ErrRemote, pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrTimeout, pageURL, err)
		}
		return nil, fmt.Errorf("parsing HTML from %s: %w", pageURL, err)
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			hrefs = append(hrefs, strings.TrimSpace(href))
		}
	})

	if len(hrefs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyListing, pageURL)
	}
	return hrefs, nil
}
