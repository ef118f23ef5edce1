/*
Package pow implements the Proof-of-Work (PoW) gate placed in front of account signup.

A client fetches a nonce, searches for a counter whose SHA-256(nonce+counter) hex digest starts
with the configured number of zeros, and exchanges the pair for a short-lived, single-use proof
token that accompanies the signup request.
*/
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenHeaderKey is the HTTP header key used by the client to send the Proof Token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is the validity period for the Proof Token issued after successful PoW validation.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is the validity period for the challenge Nonce.
	NonceExpiryDuration = 5 * time.Minute
)

var (
	ErrNonceInvalid = errors.New("nonce expired or invalid")
	ErrProofInvalid = errors.New("proof does not meet difficulty requirement")
)

// PoWManager is responsible for managing the lifecycle of PoW challenges and Proof Tokens.
// It is concurrent-safe, using internal maps to store active nonces and tokens.
type PoWManager struct {
	// difficulty is the required number of leading zeros; zero disables the gate.
	difficulty int

	nonceStore map[string]time.Time
	tokenStore map[string]time.Time

	mu sync.Mutex
}

// NewPoWManager creates a PoWManager and starts a goroutine that drops expired entries until ctx ends.
func NewPoWManager(ctx context.Context, difficulty int) *PoWManager {
	mgr := &PoWManager{
		difficulty: difficulty,
		nonceStore: make(map[string]time.Time),
		tokenStore: make(map[string]time.Time),
	}

	go mgr.cleanupExpiredEntries(ctx)

	return mgr
}

// Enabled reports whether signup requires a proof token.
func (m *PoWManager) Enabled() bool {
	return m.difficulty > 0
}

// Difficulty returns the number of leading hex zeros a valid proof needs.
func (m *PoWManager) Difficulty() int {
	return m.difficulty
}

// GenerateNonce generates a unique Nonce string for the PoW challenge and stores it for validation.
func (m *PoWManager) GenerateNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.New().String()
	m.nonceStore[nonce] = time.Now().Add(NonceExpiryDuration)
	return nonce
}

// Solves reports whether counter satisfies the difficulty for nonce.
func Solves(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", difficulty))
}

// ValidateProof consumes the nonce and, when the proof holds, issues a single-use Proof Token.
func (m *PoWManager) ValidateProof(nonce, counter string) (string, error) {
	if !Solves(nonce, counter, m.difficulty) {
		return "", ErrProofInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.nonceStore[nonce]
	if !ok || time.Now().After(expiryTime) {
		return "", ErrNonceInvalid
	}
	delete(m.nonceStore, nonce)

	token := uuid.New().String()
	m.tokenStore[token] = time.Now().Add(ProofTokenDuration)
	return token, nil
}

// ConsumeProofToken checks the request's Proof Token (X-PoW-Token header or pow_token query
// parameter) and invalidates it, so one solved challenge admits one signup.
func (m *PoWManager) ConsumeProofToken(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get("pow_token")
	}

	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.tokenStore[token]
	if !ok {
		return false
	}
	delete(m.tokenStore, token)

	return time.Now().Before(expiryTime)
}

func (m *PoWManager) cleanupExpiredEntries(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for nonce, expiry := range m.nonceStore {
				if now.After(expiry) {
					delete(m.nonceStore, nonce)
				}
			}
			for token, expiry := range m.tokenStore {
				if now.After(expiry) {
					delete(m.tokenStore, token)
				}
			}
			m.mu.Unlock()
		}
	}
}
