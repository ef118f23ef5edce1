package pow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solve(t *testing.T, nonce string, difficulty int) string {
	t.Helper()
	for i := 0; i < 1_000_000; i++ {
		counter := strconv.Itoa(i)
		if Solves(nonce, counter, difficulty) {
			return counter
		}
	}
	t.Fatal("no solution found")
	return ""
}

func TestValidateProof_IssuesSingleUseToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewPoWManager(ctx, 2)
	require.True(t, m.Enabled())

	nonce := m.GenerateNonce()
	counter := solve(t, nonce, 2)

	token, err := m.ValidateProof(nonce, counter)
	require.NoError(t, err)

	_, err = m.ValidateProof(nonce, counter)
	assert.ErrorIs(t, err, ErrNonceInvalid, "nonce must not be reusable")

	r := httptest.NewRequest(http.MethodPost, "/api/auth/signup", nil)
	r.Header.Set(TokenHeaderKey, token)
	assert.True(t, m.ConsumeProofToken(r))
	assert.False(t, m.ConsumeProofToken(r), "token must be single use")
}

func TestValidateProof_RejectsWrongCounter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewPoWManager(ctx, 3)
	nonce := m.GenerateNonce()

	counter := 0
	for Solves(nonce, strconv.Itoa(counter), 3) {
		counter++
	}
	_, err := m.ValidateProof(nonce, strconv.Itoa(counter))
	assert.ErrorIs(t, err, ErrProofInvalid)

	_, err = m.ValidateProof("unknown", solve(t, "unknown", 3))
	assert.ErrorIs(t, err, ErrNonceInvalid)
}

func TestDisabled(t *testing.T) {
	m := NewPoWManager(context.Background(), 0)
	assert.False(t, m.Enabled())
	assert.True(t, Solves("anything", "", 0))
}
