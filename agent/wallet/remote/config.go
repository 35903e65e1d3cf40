package remote

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
)

// Defaults of the remote wallet service.
const (
	DefaultEndpoint  = "http://localhost:8000/api/v1/"
	DefaultPing      = "ping/"
	DefaultAuth      = "api-token-auth/"
	DefaultKeyval    = "keyval/"
	DefaultFreshness = 1000 * time.Millisecond
	DefaultTimeout   = 10 * time.Second
)

// RemoteConfig is the resolved client configuration of a remote wallet.
type RemoteConfig struct {
	Endpoint   string
	PingPath   string
	AuthPath   string
	KeyvalPath string

	// FreshnessTime is how long an auth token is trusted before it's
	// validated again. Zero means every call.
	FreshnessTime time.Duration
	Timeout       time.Duration

	RateLimit float64 // requests per second, 0 is no limit
	Burst     int
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// NewRemoteConfig fills the defaults to the wallet config and validates it.
func NewRemoteConfig(c api.Config) (rc RemoteConfig, err error) {
	rc = RemoteConfig{
		Endpoint:      withSlash(orDefault(c.Endpoint, DefaultEndpoint)),
		PingPath:      orDefault(c.Ping, DefaultPing),
		AuthPath:      orDefault(c.Auth, DefaultAuth),
		KeyvalPath:    withSlash(orDefault(c.Keyval, DefaultKeyval)),
		FreshnessTime: c.Freshness(DefaultFreshness),
		Timeout:       DefaultTimeout,
		RateLimit:     c.RateLimit,
		Burst:         c.Burst,
	}
	if c.Timeout > 0 {
		rc.Timeout = time.Duration(c.Timeout) * time.Millisecond
	}
	if rc.FreshnessTime < 0 {
		return rc, fmt.Errorf("freshness_time cannot be negative")
	}
	if rc.RateLimit < 0 {
		return rc, fmt.Errorf("rate_limit cannot be negative")
	}
	if rc.RateLimit > 0 && rc.Burst <= 0 {
		rc.Burst = 1
	}
	u, err := url.Parse(rc.Endpoint)
	if err != nil {
		return rc, fmt.Errorf("endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return rc, fmt.Errorf("endpoint %q: scheme must be http or https", rc.Endpoint)
	}
	if strings.HasPrefix(rc.KeyvalPath, "/") {
		return rc, fmt.Errorf("keyval path %q must be relative", rc.KeyvalPath)
	}
	return rc, nil
}

func (rc RemoteConfig) pingURL() string {
	return rc.Endpoint + rc.PingPath
}

func (rc RemoteConfig) authURL() string {
	return rc.Endpoint + rc.AuthPath
}

// escape escapes the path segment. The dot segments are escaped too, since
// otherwise they would be cleaned away from the path.
func escape(seg string) string {
	switch seg {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(seg)
}

// collectionURL is the URL of all the records of the virtual wallet.
func (rc RemoteConfig) collectionURL(vw string) string {
	return rc.Endpoint + escape(vw) + "/" + rc.KeyvalPath
}

func (rc RemoteConfig) typeURL(vw, typ string) string {
	return rc.collectionURL(vw) + escape(typ) + "/"
}

func (rc RemoteConfig) recordURL(vw, typ, id string) string {
	return rc.typeURL(vw, typ) + escape(id) + "/"
}
