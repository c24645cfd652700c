// Package ameli queries the public directory of psychologists taking part in
// the national reimbursed-sessions scheme.
package ameli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

// DefaultBaseURL is the public directory host.
const DefaultBaseURL = "https://monsoutienpsy.ameli.fr"

const searchPath = "/annuaire/psychologists/search"

// Record is one directory entry as served by the API.
type Record struct {
	ID                json.Number `json:"id"`
	FirstName         string      `json:"firstname"`
	LastName          string      `json:"lastname"`
	Address           string      `json:"address"`
	AddressAdditional string      `json:"address_additional,omitempty"`
	CoordinatesX      float64     `json:"coordinates_x"`
	CoordinatesY      float64     `json:"coordinates_y"`
	Phone             string      `json:"phone,omitempty"`
	Email             string      `json:"email,omitempty"`
	Website           string      `json:"website,omitempty"`
	Public            string      `json:"public,omitempty"`
	Teleconsultation  *bool       `json:"teleconsultation,omitempty"`
	Visible           *bool       `json:"visible,omitempty"`
	Languages         string      `json:"languages,omitempty"`
}

// Entry is a raw directory record keyed by its external id. Payload is the
// compacted JSON object exactly as received.
type Entry struct {
	ExternalID string
	Payload    []byte
}

// Decode parses a stored payload.
func Decode(payload []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, eris.Wrap(err, "ameli: decode record")
	}
	return &r, nil
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ameli: HTTP %d: %s", e.StatusCode, e.Status)
}

// Transient reports whether the status is worth retrying later.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.http.SetBaseURL(u) }
}

// WithTimeout sets the per-request timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithProxy routes every request through u.
func WithProxy(u *url.URL) Option {
	return func(c *Client) {
		if u != nil {
			c.http.SetProxy(u.String())
		}
	}
}

// Client searches the directory.
type Client struct {
	http *resty.Client
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search lists the psychologists the directory returns around a point.
// Entries without an id are dropped.
func (c *Client) Search(ctx context.Context, lon, lat float64) ([]Entry, error) {
	var raw []json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("coordinates_x", strconv.FormatFloat(lon, 'f', -1, 64)).
		SetQueryParam("coordinates_y", strconv.FormatFloat(lat, 'f', -1, 64)).
		SetResult(&raw).
		ForceContentType("application/json").
		Get(searchPath)
	if err != nil {
		return nil, eris.Wrap(err, "ameli: search")
	}
	if resp.IsError() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Status: http.StatusText(resp.StatusCode())}
	}

	out := make([]Entry, 0, len(raw))
	for _, msg := range raw {
		var head struct {
			ID json.Number `json:"id"`
		}
		if err := json.Unmarshal(msg, &head); err != nil || head.ID == "" {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, msg); err != nil {
			continue
		}
		out = append(out, Entry{ExternalID: head.ID.String(), Payload: buf.Bytes()})
	}
	return out, nil
}
