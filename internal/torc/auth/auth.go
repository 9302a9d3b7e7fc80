// Package auth implements the three credential-verification modes of spec
// §6 as adapters behind a single Authenticator interface. Credential
// storage, group-based access control, and the production credential cache
// are out of core (spec §1); this package only yields a subject string
// given a request's credential material.
//
// Grounded on the original implementation's src/server/htpasswd.rs for the
// htpasswd adapter's shape (one username -> bcrypt hash lookup), reimplemented
// with golang.org/x/crypto/bcrypt (already pulled in transitively by the
// pack's tinkerbell-tinkerbell via golang.org/x/crypto).
package auth

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nrel/torc/internal/torc/torcerr"
)

// LoadHtpasswdFile parses a standard "user:bcrypt-hash" htpasswd file (one
// entry per line, '#'-prefixed lines and blank lines ignored) into the table
// NewHtpasswd expects.
func LoadHtpasswdFile(path string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open htpasswd file: %w", err)
	}
	defer f.Close()

	hashes := make(map[string][]byte)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		user, hash, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed htpasswd line: %q", line)
		}
		hashes[user] = []byte(hash)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read htpasswd file: %w", err)
	}
	return hashes, nil
}

// Authenticator verifies a credential and returns the subject it identifies.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (subject string, err error)
}

// HtpasswdAuthenticator verifies "user:password" credentials against an
// in-memory table of bcrypt hashes, the local-file auth mode of spec §6.
type HtpasswdAuthenticator struct {
	hashes map[string][]byte // user -> bcrypt hash
}

// NewHtpasswd builds an authenticator from a user->bcrypt-hash table, as
// would be parsed from an htpasswd file.
func NewHtpasswd(hashes map[string][]byte) *HtpasswdAuthenticator {
	return &HtpasswdAuthenticator{hashes: hashes}
}

// Authenticate expects credential in "user:password" form.
func (a *HtpasswdAuthenticator) Authenticate(ctx context.Context, credential string) (string, error) {
	user, password, ok := splitUserPassword(credential)
	if !ok {
		return "", torcerr.New(torcerr.Unauthorized, "malformed credential")
	}
	hash, ok := a.hashes[user]
	if !ok {
		return "", torcerr.New(torcerr.Unauthorized, "unknown user")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", torcerr.New(torcerr.Unauthorized, "invalid password")
	}
	return user, nil
}

func splitUserPassword(credential string) (user, password string, ok bool) {
	for i := 0; i < len(credential); i++ {
		if credential[i] == ':' {
			return credential[:i], credential[i+1:], true
		}
	}
	return "", "", false
}

// BearerTokenAuthenticator verifies a static table of bearer tokens, each
// mapped to the subject it authorizes.
type BearerTokenAuthenticator struct {
	tokens map[string]string // token -> subject
}

func NewBearerToken(tokens map[string]string) *BearerTokenAuthenticator {
	return &BearerTokenAuthenticator{tokens: tokens}
}

func (a *BearerTokenAuthenticator) Authenticate(ctx context.Context, credential string) (string, error) {
	subject, ok := a.tokens[credential]
	if !ok {
		return "", torcerr.New(torcerr.Unauthorized, "unknown bearer token")
	}
	return subject, nil
}

// APIKeyAuthenticator verifies a static table of API keys, the header-based
// mode of spec §6.
type APIKeyAuthenticator struct {
	keys map[string]string // key -> subject
}

func NewAPIKey(keys map[string]string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys}
}

func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, credential string) (string, error) {
	subject, ok := a.keys[credential]
	if !ok {
		return "", torcerr.New(torcerr.Unauthorized, "unknown API key")
	}
	return subject, nil
}

// CachingAuthenticator decorates a slow Authenticator with a TTL cache,
// grounded on the original's src/server/credential_cache.rs shape. The
// production credential cache itself stays out of core (spec §1); this is
// the seam a caller wraps a real verification mode in.
type CachingAuthenticator struct {
	inner Authenticator
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	subject string
	err     error
	at      time.Time
}

func NewCaching(inner Authenticator, ttl time.Duration) *CachingAuthenticator {
	return &CachingAuthenticator{inner: inner, ttl: ttl, cache: make(map[string]cacheEntry)}
}

func (c *CachingAuthenticator) Authenticate(ctx context.Context, credential string) (string, error) {
	c.mu.Lock()
	if e, ok := c.cache[credential]; ok && time.Since(e.at) < c.ttl {
		c.mu.Unlock()
		return e.subject, e.err
	}
	c.mu.Unlock()

	subject, err := c.inner.Authenticate(ctx, credential)

	c.mu.Lock()
	c.cache[credential] = cacheEntry{subject: subject, err: err, at: time.Now()}
	c.mu.Unlock()
	return subject, err
}
