// Package identity manages the Ed25519 signing keys backing the tenant
// JWTs that JWTResolver verifies (pkg/tenant's "Authorization: Bearer"
// path). A tenant's role and membership binding live in the token's
// claims, so the keys here are the whole trust anchor for that path;
// CLIResolver's env-var path never touches this package.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRetainedKeys bounds how many past signing keys an
// InMemoryKeySet keeps verifiable after a Rotate. A tenant JWT carries
// no fixed TTL contract beyond its own exp claim, so a key rotated out
// must stay valid long enough for tokens minted just before the
// rotation to still verify; retaining more than this trades memory for
// a longer grace window.
const DefaultRetainedKeys = 10

// KeySet manages active signing keys and verification of past keys,
// supporting rotation without downtime.
type KeySet interface {
	// Sign creates a signed token with the current active key.
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	// KeyFunc returns the key for verification based on the token header.
	KeyFunc() jwt.Keyfunc
}

// InMemoryKeySet holds keys in memory, keyed by kid, with the oldest
// evicted once more than maxRetained are held.
type InMemoryKeySet struct {
	mu          sync.RWMutex
	currentKID  string
	keys        map[string]ed25519.PrivateKey
	maxRetained int
}

// NewInMemoryKeySet builds a key set retaining DefaultRetainedKeys past
// keys, generating its first active key immediately.
func NewInMemoryKeySet() (*InMemoryKeySet, error) {
	return NewInMemoryKeySetWithRetention(DefaultRetainedKeys)
}

// NewInMemoryKeySetWithRetention is NewInMemoryKeySet with an explicit
// retention window, for operators who rotate more aggressively than
// the default.
func NewInMemoryKeySetWithRetention(maxRetained int) (*InMemoryKeySet, error) {
	if maxRetained < 1 {
		maxRetained = 1
	}
	ks := &InMemoryKeySet{
		keys:        make(map[string]ed25519.PrivateKey),
		maxRetained: maxRetained,
	}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a new active signing key. Tokens already signed
// with the previous key keep verifying through KeyFunc until it ages
// out of the retention window.
func (ks *InMemoryKeySet) Rotate() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate tenant signing key: %w", err)
	}

	kid := fmt.Sprintf("requiem-%d", time.Now().UnixNano())
	ks.keys[kid] = privateKey
	ks.currentKID = kid

	for len(ks.keys) > ks.maxRetained {
		oldest := ks.oldestKIDLocked(kid)
		delete(ks.keys, oldest)
	}
	return nil
}

// oldestKIDLocked picks the lexicographically smallest kid other than
// except, which for the "requiem-<unixnano>" format is also the
// earliest-minted one. Callers must hold ks.mu.
func (ks *InMemoryKeySet) oldestKIDLocked(except string) string {
	oldest := ""
	for k := range ks.keys {
		if k == except {
			continue
		}
		if oldest == "" || k < oldest {
			oldest = k
		}
	}
	return oldest
}

func (ks *InMemoryKeySet) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.keys[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("no active key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in header")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", kid)
		}

		return key.Public(), nil
	}
}
