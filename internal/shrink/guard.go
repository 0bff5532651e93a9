package shrink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request validation errors. Their messages are shown to the user verbatim.
var (
	ErrPermission   = errors.New("Administrator permission is required")
	ErrTokenExpired = errors.New("Access token has expired, please reload the page.")
	ErrMissingID    = errors.New("Missing ID Parameter")
)

// Token actions.
const (
	ActionBulk         = "bulk"
	ActionManualResize = "manual-resize"
)

// DefaultTokenTTL is how long an issued access token stays valid.
const DefaultTokenTTL = 12 * time.Hour

// Request carries the caller's credentials for one operation.
type Request struct {
	Admin bool
	Token string
}

type issuedToken struct {
	action  string
	expires time.Time
}

// Guard rejects unauthorised or stale requests before any image is touched.
type Guard struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	tokens map[string]issuedToken
}

// NewGuard creates a Guard whose tokens live for ttl.
func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Guard{
		ttl:    ttl,
		now:    time.Now,
		tokens: make(map[string]issuedToken),
	}
}

// Issue creates a token for action.
func (g *Guard) Issue(action string) (string, error) {
	if action != ActionBulk && action != ActionManualResize {
		return "", fmt.Errorf("unknown token action %q", action)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for token, t := range g.tokens {
		if now.After(t.expires) {
			delete(g.tokens, token)
		}
	}

	token := uuid.NewString()
	g.tokens[token] = issuedToken{action: action, expires: now.Add(g.ttl)}
	return token, nil
}

// Verify checks permission first, then the token. A token issued for either
// the bulk or the manual-resize action is accepted.
func (g *Guard) Verify(req Request) error {
	if !req.Admin {
		return ErrPermission
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tokens[req.Token]
	if !ok || g.now().After(t.expires) {
		return ErrTokenExpired
	}
	return nil
}

// RequireID rejects a zero identifier.
func RequireID(id uint64) error {
	if id == 0 {
		return ErrMissingID
	}
	return nil
}
