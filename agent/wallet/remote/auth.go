package remote

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

// AuthCacheEntry is an auth token and the time it was obtained or last
// validated.
type AuthCacheEntry struct {
	Token      string
	ObtainedAt time.Time
}

// Valid tells if the entry can be used at now. Zero freshness makes every
// entry invalid.
func (e AuthCacheEntry) Valid(now time.Time, freshness time.Duration) bool {
	return e.Token != "" && now.Sub(e.ObtainedAt) < freshness
}

// authCache serializes the read-check-refresh of one handle's token so that
// concurrent callers authenticate only once.
type authCache struct {
	freshness time.Duration
	now       func() time.Time
	refresh   func(ctx context.Context) (string, error)

	l     sync.Mutex
	entry AuthCacheEntry
}

// token returns a fresh token, and authenticates first if the cached one is
// stale.
func (a *authCache) token(ctx context.Context) (string, error) {
	a.l.Lock()
	defer a.l.Unlock()

	now := a.now()
	if a.entry.Valid(now, a.freshness) {
		return a.entry.Token, nil
	}
	glog.V(5).Infoln("auth token stale, refreshing")
	tok, err := a.refresh(ctx)
	if err != nil {
		a.entry = AuthCacheEntry{}
		return "", err
	}
	a.entry = AuthCacheEntry{Token: tok, ObtainedAt: a.now()}
	return tok, nil
}

// invalidate drops the token if it's still the cached one.
func (a *authCache) invalidate(tok string) {
	a.l.Lock()
	defer a.l.Unlock()

	if a.entry.Token == tok {
		glog.V(3).Infoln("auth token invalidated")
		a.entry = AuthCacheEntry{}
	}
}

func (a *authCache) current() AuthCacheEntry {
	a.l.Lock()
	defer a.l.Unlock()
	return a.entry
}

// authHeader returns the Authorization header value of the token. A token
// which already has a scheme, like "JWT x", is used as is.
func authHeader(tok string) string {
	if strings.ContainsRune(tok, ' ') {
		return tok
	}
	return "Token " + tok
}
