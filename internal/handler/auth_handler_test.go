package handler

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/pow"
)

func TestSignupLoginCheck(t *testing.T) {
	app := newTestApp(t, 0)

	res := app.do(http.MethodPost, "/api/auth/signup", "", SignupInput{
		FullName: "Ana", Email: " Ana@Example.com ", Password: "secret1", Bio: "hi",
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)

	created := decodeData[AuthResponse](t, res)
	require.NotNil(t, created.User)
	assert.Equal(t, "ana@example.com", created.User.Email)
	assert.NotContains(t, string(res.Data), "password")

	payload, err := jwt.ParseToken(created.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, payload.ID)

	res = app.do(http.MethodPost, "/api/auth/signup", "", SignupInput{
		FullName: "Other", Email: "ana@example.com", Password: "secret1", Bio: "hi",
	})
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.Equal(t, errs.ErrUserAlreadyExists, res.Code)

	res = app.do(http.MethodPost, "/api/auth/signup", "", SignupInput{FullName: "Bo", Email: "bo@example.com", Password: "secret1"})
	assert.Equal(t, errs.ErrMissingDetails, res.Code)

	res = app.do(http.MethodPost, "/api/auth/login", "", LoginInput{Email: "ANA@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, res.Status, res.Message)
	logged := decodeData[AuthResponse](t, res)
	assert.Equal(t, created.User.ID, logged.User.ID)

	res = app.do(http.MethodPost, "/api/auth/login", "", LoginInput{Email: "ana@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, errs.ErrInvalidCredentials, res.Code)

	res = app.do(http.MethodPost, "/api/auth/login", "", LoginInput{Email: "nobody@example.com", Password: "secret1"})
	assert.Equal(t, errs.ErrInvalidCredentials, res.Code)

	res = app.do(http.MethodGet, "/api/auth/check", logged.Token, nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, string(res.Data), created.User.ID)

	res = app.do(http.MethodGet, "/api/auth/check", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, errs.ErrUnauthorized, res.Code)

	res = app.do(http.MethodGet, "/api/auth/check", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestCheckAuth_DeletedUser(t *testing.T) {
	app := newTestApp(t, 0)

	token, err := jwt.GenerateToken(&jwt.Payload{ID: "3f2504e0-4f89-41d3-9a0c-0305e82c3301"}, testSecret, jwt.UserIdentityExpiration)
	require.NoError(t, err)

	res := app.do(http.MethodGet, "/api/auth/check", token, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestSignup_ProofOfWork(t *testing.T) {
	app := newTestApp(t, 1)

	input := SignupInput{FullName: "Ana", Email: "ana@example.com", Password: "secret1", Bio: "hi"}

	res := app.do(http.MethodPost, "/api/auth/signup", "", input)
	assert.Equal(t, errs.ErrPowChallengeRequired, res.Code)

	res = app.do(http.MethodGet, "/api/auth/challenge", "", nil)
	require.Equal(t, http.StatusOK, res.Status)
	challenge := decodeData[struct {
		Nonce      string `json:"nonce"`
		Difficulty int    `json:"difficulty"`
	}](t, res)
	require.Equal(t, 1, challenge.Difficulty)

	counter := 0
	for !pow.Solves(challenge.Nonce, strconv.Itoa(counter), challenge.Difficulty) {
		counter++
	}

	wrong := 0
	for pow.Solves(challenge.Nonce, strconv.Itoa(wrong), challenge.Difficulty) {
		wrong++
	}
	res = app.do(http.MethodPost, "/api/auth/challenge", "", SolveChallengeInput{Nonce: challenge.Nonce, Counter: strconv.Itoa(wrong)})
	assert.Equal(t, errs.ErrPowChallengeInvalid, res.Code)

	res = app.do(http.MethodPost, "/api/auth/challenge", "", SolveChallengeInput{Nonce: challenge.Nonce, Counter: strconv.Itoa(counter)})
	require.Equal(t, http.StatusOK, res.Status, res.Message)
	proof := decodeData[map[string]string](t, res)

	res = app.do(http.MethodPost, "/api/auth/signup", "", input, pow.TokenHeaderKey, proof["token"])
	assert.Equal(t, http.StatusCreated, res.Status, res.Message)

	input.Email = "second@example.com"
	res = app.do(http.MethodPost, "/api/auth/signup", "", input, pow.TokenHeaderKey, proof["token"])
	assert.Equal(t, errs.ErrPowChallengeRequired, res.Code, "proof tokens are single use")
}

func TestChallenge_Disabled(t *testing.T) {
	app := newTestApp(t, 0)

	res := app.do(http.MethodGet, "/api/auth/challenge", "", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, false, decodeData[map[string]any](t, res)["enabled"])
}
