// Package links resolves canonical URLs for content items.
package links

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wehubfusion/Hodos/pkg/content"
)

// Options controls how an item URL is rendered.
type Options struct {
	// AlwaysIncludeServerURL renders absolute URLs.
	AlwaysIncludeServerURL bool `yaml:"alwaysIncludeServerUrl"`
	// LanguageEmbedding prefixes the path with the Language segment.
	LanguageEmbedding bool   `yaml:"languageEmbedding"`
	Language          string `yaml:"language"`
	// LowercaseURLs lowercases the rendered path.
	LowercaseURLs bool `yaml:"lowercaseUrls"`
}

// Resolver produces the URL of a content item.
type Resolver interface {
	URL(ctx context.Context, item *content.Item, opts Options) (string, error)
}

// PathResolver derives URLs from item content paths relative to a site root.
type PathResolver struct {
	serverURL *url.URL
	siteRoot  string
}

// NewPathResolver creates a resolver. serverURL may be empty when absolute
// URLs are never requested; siteRoot is the content path that maps to "/".
func NewPathResolver(serverURL, siteRoot string) (*PathResolver, error) {
	r := &PathResolver{siteRoot: strings.TrimRight(siteRoot, "/")}
	if serverURL != "" {
		u, err := url.Parse(serverURL)
		if err != nil {
			return nil, fmt.Errorf("links: invalid server url %q: %w", serverURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("links: server url %q must be absolute", serverURL)
		}
		r.serverURL = u
	}
	return r, nil
}

// URL implements Resolver.
func (r *PathResolver) URL(_ context.Context, item *content.Item, opts Options) (string, error) {
	if item == nil {
		return "", fmt.Errorf("links: item is required")
	}

	p := r.relativePath(item.ContentPath)
	if opts.LanguageEmbedding && opts.Language != "" {
		p = "/" + opts.Language + strings.TrimSuffix(p, "/")
		if p == "/"+opts.Language {
			p += "/"
		}
	}
	if opts.LowercaseURLs {
		p = strings.ToLower(p)
	}

	u := &url.URL{Path: p}
	if !opts.AlwaysIncludeServerURL {
		return u.EscapedPath(), nil
	}
	if r.serverURL == nil {
		return "", fmt.Errorf("links: absolute url requested but no server url configured")
	}
	return r.serverURL.ResolveReference(u).String(), nil
}

// relativePath strips the site root from a content path. Paths outside the
// site root are returned unchanged.
func (r *PathResolver) relativePath(contentPath string) string {
	p := contentPath
	if r.siteRoot != "" && len(p) >= len(r.siteRoot) && strings.EqualFold(p[:len(r.siteRoot)], r.siteRoot) {
		rest := p[len(r.siteRoot):]
		if rest == "" || strings.HasPrefix(rest, "/") {
			p = rest
		}
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
