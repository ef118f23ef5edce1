package handler

import (
	"errors"
	"net/http"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/pow"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

// HandleGetChallenge issues a signup Proof-of-Work challenge.
func HandleGetChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.PoW.Enabled() {
			resp.RespondSuccess(w, r, map[string]any{"enabled": false, "difficulty": 0})
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"enabled":    true,
			"nonce":      deps.PoW.GenerateNonce(),
			"difficulty": deps.PoW.Difficulty(),
		})
	}
}

type SolveChallengeInput struct {
	Nonce   string `json:"nonce"`
	Counter string `json:"counter"`
}

// HandleSolveChallenge exchanges a solved challenge for a single-use proof token.
func HandleSolveChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SolveChallengeInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Nonce == "" || input.Counter == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		token, err := deps.PoW.ValidateProof(input.Nonce, input.Counter)
		if err != nil {
			if !errors.Is(err, pow.ErrProofInvalid) && !errors.Is(err, pow.ErrNonceInvalid) {
				resp.RespondErr(w, r, err)
				return
			}
			logx.Warn("PoW proof rejected", "reason", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}

		resp.RespondSuccess(w, r, map[string]string{
			"token":  token,
			"header": pow.TokenHeaderKey,
		})
	}
}
