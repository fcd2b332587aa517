package upstream

import (
	"fmt"
	"net/url"
)

// resolveCursor turns an upstream "next" pointer into the URL of the next
// page request.
//
// Cursors come back in several shapes (absolute URL, relative path, bare
// query string). Whatever the shape, only its query parameters are
// trusted: they are recombined with the canonical scheme/host and the
// path of the first request, and the access credential is re-attached
// when the upstream echoed a cursor without it.
func (c *Client) resolveCursor(canonicalPath, next string) (*url.URL, error) {
	cu, err := url.Parse(next)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadCursor, next)
	}

	q, err := url.ParseQuery(cu.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: bad query in %q", ErrBadCursor, next)
	}
	// A cursor with no parameters at all can't address a page.
	if len(q) == 0 {
		return nil, fmt.Errorf("%w: empty query in %q", ErrBadCursor, next)
	}
	if q.Get("apikey") == "" {
		q.Set("apikey", c.apiKey)
	}

	u := *c.base
	u.Path = canonicalPath
	u.RawQuery = q.Encode()
	return &u, nil
}
