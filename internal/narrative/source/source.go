// Package source produces raw project documents from a local export or the
// remote project API.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cory-johannsen/weave/internal/config"
)

// DefaultMaxDocumentBytes caps API response bodies.
const DefaultMaxDocumentBytes = 64 << 20

// ErrDocumentTooLarge is returned when a response body exceeds the API's limit.
var ErrDocumentTooLarge = errors.New("project document too large")

// Source yields one raw project document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// File reads a local JSON export.
type File struct {
	Path string
}

// Fetch reads the file at f.Path.
func (f File) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading project file %s: %w", f.Path, err)
	}
	return data, nil
}

// API fetches a project from GET {baseURL}/{hash}/json.
type API struct {
	baseURL string
	token   string
	hash    string
	locale   string
	client   *http.Client
	maxBytes int64
}

// NewAPI creates an API source. locale may be empty; client nil uses
// http.DefaultClient.
//
// Precondition: baseURL and hash must be non-empty.
func NewAPI(baseURL, token, hash, locale string, client *http.Client) *API {
	if client == nil {
		client = http.DefaultClient
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hash:    hash,
		locale:   locale,
		client:   client,
		maxBytes: DefaultMaxDocumentBytes,
	}
}

// WithMaxBytes sets the largest response body Fetch accepts and returns a.
//
// Precondition: n > 0.
func (a *API) WithMaxBytes(n int64) *API {
	a.maxBytes = n
	return a
}

// URL returns the request URL. A lang query parameter is added when a locale
// is set and the base URL does not already carry one.
func (a *API) URL() (string, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api url %q: %w", a.baseURL, err)
	}
	u = u.JoinPath(a.hash, "json")
	if a.locale != "" {
		q := u.Query()
		if !q.Has("lang") {
			q.Set("lang", a.locale)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// Fetch downloads the project document.
//
// Postcondition: Returns the body of a 2xx response, or an error naming the
// response status otherwise. A body longer than the limit fails with
// ErrDocumentTooLarge.
func (a *API) Fetch(ctx context.Context) ([]byte, error) {
	target, err := a.URL()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build project request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("project request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("project api returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read project response: %w", err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrDocumentTooLarge, a.maxBytes)
	}
	return data, nil
}

// FromConfig builds the Source selected by cfg. locale is sent to the API
// when non-empty.
//
// Postcondition: Returns an error for an unknown source mode.
func FromConfig(cfg config.ProjectConfig, locale string) (Source, error) {
	switch cfg.Source {
	case config.SourceFile:
		return File{Path: cfg.Path}, nil
	case config.SourceAPI:
		return NewAPI(cfg.APIURL, cfg.APIToken, cfg.Hash, locale, &http.Client{Timeout: cfg.Timeout}), nil
	}
	return nil, fmt.Errorf("unknown project source %q", cfg.Source)
}
