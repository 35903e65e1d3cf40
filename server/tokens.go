package server

import (
	"sync"
	"time"

	"github.com/findy-network/findy-wallet/agent/wallet/keys"
)

type issued struct {
	tenant string
	at     time.Time
}

// tokens are the auth tokens issued by the service. They live in memory, and
// a restart of the service invalidates them.
type tokens struct {
	ttl time.Duration
	now func() time.Time

	l  sync.Mutex
	by map[string]issued
}

func newTokens(ttl time.Duration, now func() time.Time) *tokens {
	return &tokens{ttl: ttl, now: now, by: make(map[string]issued)}
}

func (t *tokens) issue(tenant string) string {
	tok := keys.GenerateKey()

	t.l.Lock()
	defer t.l.Unlock()
	t.by[tok] = issued{tenant: tenant, at: t.now()}
	return tok
}

// tenant returns the tenant of a live token.
func (t *tokens) tenant(tok string) (string, bool) {
	t.l.Lock()
	defer t.l.Unlock()

	i, ok := t.by[tok]
	if !ok {
		return "", false
	}
	if t.ttl > 0 && t.now().Sub(i.at) >= t.ttl {
		delete(t.by, tok)
		return "", false
	}
	return i.tenant, true
}

func (t *tokens) revoke(tenant string) (n int) {
	t.l.Lock()
	defer t.l.Unlock()

	for tok, i := range t.by {
		if i.tenant == tenant {
			delete(t.by, tok)
			n++
		}
	}
	return n
}
