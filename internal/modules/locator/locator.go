package locator

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrWrongURI is returned for locators that are not absolute URIs.
var ErrWrongURI = errors.New("locator: wrong uri")

// Transport selects which HTTP client variant serves a locator.
type Transport int

const (
	Plain Transport = iota
	Secure
)

func (t Transport) String() string {
	if t == Secure {
		return "secure"
	}
	return "plain"
}

// Locator is a validated thumbnail URL.
type Locator struct {
	raw string
	url *url.URL
}

// Parse validates raw as an absolute URI. Web schemes must also name a host.
func Parse(raw string) (*Locator, error) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrWrongURI, raw, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%w: %q: missing scheme", ErrWrongURI, raw)
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return nil, fmt.Errorf("%w: %q: missing host", ErrWrongURI, raw)
	}
	return &Locator{raw: raw, url: u}, nil
}

// Raw returns the locator exactly as it was stored.
func (l *Locator) Raw() string { return l.raw }

// String returns the normalised URL used for the request.
func (l *Locator) String() string { return l.url.String() }

// URL returns a copy of the parsed URL.
func (l *Locator) URL() *url.URL {
	u := *l.url
	return &u
}

// Transport picks the secure client for https and the plain one otherwise.
// Decided from the parsed scheme, so "http://host/https.jpg" stays plain.
func (l *Locator) Transport() Transport {
	if l.url.Scheme == "https" {
		return Secure
	}
	return Plain
}

// Ext returns the extension of the URL path, including the dot, or "".
func (l *Locator) Ext() string {
	return path.Ext(l.url.Path)
}
