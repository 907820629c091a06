package storage

import (
	"net/url"
	"strings"
)

// PublicURLResolver turns stored relative image paths into fetchable URLs.
// Paths are resolved at response time; the resolved URL is never persisted.
type PublicURLResolver struct {
	baseURL string
}

// NewPublicURLResolver constructs a resolver for the given base URL.
func NewPublicURLResolver(baseURL string) *PublicURLResolver {
	return &PublicURLResolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve joins the stored path onto the base URL. Absolute URLs pass through
// untouched so legacy records pointing at external hosts keep working.
func (r *PublicURLResolver) Resolve(stored string) string {
	if stored == "" {
		return ""
	}
	if u, err := url.Parse(stored); err == nil && u.IsAbs() {
		return stored
	}
	return r.baseURL + "/" + strings.TrimLeft(stored, "/")
}
