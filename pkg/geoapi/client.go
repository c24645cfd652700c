// Package geoapi is a client for the French geographic reference API
// (geo.api.gouv.fr): communes, departments and regions.
package geoapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/resilience"
)

// DefaultBaseURL is the public endpoint of the API.
const DefaultBaseURL = "https://geo.api.gouv.fr"

const (
	communeFields    = "nom,code,codeDepartement,codeRegion,codesPostaux,population,centre,departement,region"
	postalCodeFields = "nom,code,codeDepartement,codeRegion,codesPostaux,population,centre"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geoapi: %s returned status %d", e.Op, e.StatusCode)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return resilience.IsTransientHTTPStatus(e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Option configures a Client.
type Option func(*options)

type options struct {
	baseURL   string
	timeout   time.Duration
	proxy     *url.URL
	userAgent string
	transport http.RoundTripper
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithTimeout sets the per-request timeout. Default: 25s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithProxy routes every request of the client through u.
func WithProxy(u *url.URL) Option {
	return func(o *options) { o.proxy = u }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithTransport replaces the underlying HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// Client talks to the API through at most one proxy.
type Client struct {
	http *resty.Client
}

// New creates a Client.
func New(opts ...Option) *Client {
	o := options{
		baseURL:   DefaultBaseURL,
		timeout:   25 * time.Second,
		userAgent: "psyctl/1.0",
	}
	for _, opt := range opts {
		opt(&o)
	}

	hc := resty.New().
		SetBaseURL(o.baseURL).
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", o.userAgent)
	if o.transport != nil {
		hc.SetTransport(o.transport)
	}
	if o.proxy != nil {
		hc.SetProxy(o.proxy.String())
	}
	return &Client{http: hc}
}

func (c *Client) get(ctx context.Context, op, path string, query map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		ForceContentType("application/json").
		Get(path)
	if err != nil {
		return eris.Wrapf(err, "geoapi: %s", op)
	}
	if resp.IsError() {
		return &StatusError{Op: op, StatusCode: resp.StatusCode()}
	}
	return nil
}
