// Package proxy loads the residential egress endpoints and hands out one
// authenticated proxy URL per lane.
package proxy

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned when the shared proxy credentials are not set.
var ErrMissingCredentials = eris.New("proxy: username and password must be set")

// ASN identifies the network an endpoint exits from.
type ASN struct {
	Name   string `yaml:"name" json:"name"`
	Number string `yaml:"number" json:"number"`
}

// Endpoint is one entry of the provider's endpoint list.
type Endpoint struct {
	EntryPoint  string `yaml:"entryPoint" json:"entryPoint"`
	IP          string `yaml:"ip" json:"ip"`
	Port        int    `yaml:"port" json:"port"`
	CountryCode string `yaml:"countryCode" json:"countryCode"`
	ASN         ASN    `yaml:"asn" json:"asn"`
}

// Credentials are shared by every endpoint.
type Credentials struct {
	Username string
	Password string
}

// LoadEndpoints reads an endpoint list. Files ending in .json are decoded as
// JSON, anything else as YAML.
func LoadEndpoints(path string) ([]Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "proxy: read endpoint list %s", path)
	}

	var endpoints []Endpoint
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &endpoints)
	} else {
		err = yaml.Unmarshal(data, &endpoints)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "proxy: parse endpoint list %s", path)
	}

	for i, ep := range endpoints {
		if ep.EntryPoint == "" || ep.Port <= 0 {
			return nil, eris.Errorf("proxy: endpoint %d is missing entryPoint or port", i)
		}
	}
	return endpoints, nil
}

// Egress is one lane of the pool: an endpoint and its authenticated URL.
type Egress struct {
	Index    int
	Endpoint Endpoint
	URL      *url.URL
}

// Label is a short human identifier used in logs and statistics.
func (e Egress) Label() string {
	if e.URL == nil {
		return "direct"
	}
	if e.Endpoint.ASN.Name != "" {
		return fmt.Sprintf("%d:%s", e.Endpoint.Port, e.Endpoint.ASN.Name)
	}
	return strconv.Itoa(e.Endpoint.Port)
}

// Pool is an ordered, fixed set of egress lanes.
type Pool struct {
	egress []Egress
	stats  *Stats
}

// NewPool builds a pool over endpoints. Credentials are a precondition: the
// pool refuses to exist without them.
func NewPool(endpoints []Endpoint, creds Credentials, scheme string) (*Pool, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, ErrMissingCredentials
	}
	if len(endpoints) == 0 {
		return nil, eris.New("proxy: endpoint list is empty")
	}
	if scheme == "" {
		scheme = "https"
	}

	egress := make([]Egress, len(endpoints))
	for i, ep := range endpoints {
		egress[i] = Egress{
			Index:    i,
			Endpoint: ep,
			URL: &url.URL{
				Scheme: scheme,
				User:   url.UserPassword(creds.Username, creds.Password),
				Host:   net.JoinHostPort(ep.EntryPoint, strconv.Itoa(ep.Port)),
			},
		}
	}

	p := &Pool{egress: egress}
	p.stats = newStats(p.Labels())
	return p, nil
}

// Len returns the number of lanes.
func (p *Pool) Len() int { return len(p.egress) }

// AgentFor returns the egress for lane i. Indices wrap around the pool.
func (p *Pool) AgentFor(i int) Egress {
	n := len(p.egress)
	return p.egress[((i%n)+n)%n]
}

// Labels returns the lane labels in pool order.
func (p *Pool) Labels() []string {
	out := make([]string, len(p.egress))
	for i, e := range p.egress {
		out[i] = e.Label()
	}
	return out
}

// Stats returns the per-lane counters of the pool.
func (p *Pool) Stats() *Stats { return p.stats }

// Clients builds one client per lane with build. A nil pool yields a single
// direct client built from a zero Egress.
func Clients[C any](p *Pool, build func(Egress) C) []C {
	if p == nil || p.Len() == 0 {
		return []C{build(Egress{})}
	}
	out := make([]C, p.Len())
	for i, e := range p.egress {
		out[i] = build(e)
	}
	return out
}
