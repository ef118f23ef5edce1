/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"dmchat/internal/app/store"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

type SignupInput struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

// HandleSignup creates a new account and returns a token for it.
func HandleSignup(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.PoW != nil && deps.PoW.Enabled() && !deps.PoW.ConsumeProofToken(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		var input SignupInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fullName, email, bio, customErr := user.ValidateSignup(input.FullName, input.Email, input.Password, input.Bio)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		newUser := &user.User{
			FullName:     fullName,
			Email:        email,
			PasswordHash: string(hashedPassword),
			Bio:          bio,
		}

		if err := deps.Users.CreateUser(r.Context(), newUser); err != nil {
			if errors.Is(err, store.ErrDuplicateEmail) {
				logx.Warn("signup conflict: email already registered", "email", email)
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			logx.Error(err, "failed to create user")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		token, _, err := jwt.IssueIdentity(newUser.ID, deps.Config.JWTSecret)
		if err != nil {
			logx.Error(err, "failed to generate token after signup")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("user signed up", "user_id", newUser.ID)
		resp.RespondCreated(w, r, http.StatusCreated, AuthResponse{Token: token, User: newUser})
	}
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin verifies user credentials and issues a JWT token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Email == "" || input.Password == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrMissingDetails))
			return
		}

		dbUser, err := deps.Users.GetUserByEmail(r.Context(), input.Email)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				resp.RespondErr(w, r, err)
				return
			}
			logx.Warn("login: unknown email", "email", user.NormalizeEmail(input.Email))
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(dbUser.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "user_id", dbUser.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		token, _, err := jwt.IssueIdentity(dbUser.ID, deps.Config.JWTSecret)
		if err != nil {
			logx.Error(err, "login: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, AuthResponse{Token: token, User: dbUser})
	}
}

// HandleCheckAuth returns the user behind the current token.
func HandleCheckAuth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		dbUser, err := deps.Users.GetUserByID(r.Context(), identity.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logx.Warn("check_auth: token user no longer exists", "user_id", identity.ID)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": dbUser})
	}
}
