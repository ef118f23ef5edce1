package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dmchat/internal/app/chat"
	"dmchat/internal/app/message"
	"dmchat/internal/app/store"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

// profileFolder is the key prefix for profile images.
const profileFolder = "profiles"

type UpdateProfileInfoInput struct {
	FullName *string `json:"fullName"`
	Bio      *string `json:"bio"`
}

// HandleUpdateProfileInfo changes the display name and/or bio of the current user.
func HandleUpdateProfileInfo(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input UpdateProfileInfoInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		update := user.ProfileUpdate{FullName: input.FullName, Bio: input.Bio}
		if customErr := update.Normalize(); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		updated, err := deps.Users.UpdateProfileInfo(r.Context(), identity.ID, update)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": updated})
	}
}

type UpdateProfileImageInput struct {
	ProfilePic string `json:"profilePic"`
}

// HandleUpdateProfileImage uploads a new avatar (data URI) and removes the previous one.
func HandleUpdateProfileImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input UpdateProfileImageInput
		if customErr := req.BindLargeJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.ProfilePic == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrMissingDetails))
			return
		}

		upload, customErr := chat.DecodeDataURI(input.ProfilePic)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if upload.Kind != message.KindImage {
			resp.RespondError(w, r, errs.NewError(errs.ErrAttachmentInvalid))
			return
		}

		key, err := randx.ObjectKey(profileFolder, identity.ID, upload.Ext)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		url, err := deps.StorageService.Upload(r.Context(), key, upload.Body, upload.Size, upload.ContentType)
		if err != nil {
			logx.Error(err, "profile image upload failed", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		updated, previous, err := deps.Users.UpdateProfileImage(r.Context(), identity.ID, url)
		if err != nil {
			deleteObjectAsync(deps, key)
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			resp.RespondErr(w, r, err)
			return
		}

		if oldKey, ok := deps.StorageService.KeyFromURL(previous); ok && oldKey != key {
			deleteObjectAsync(deps, oldKey)
		}

		resp.RespondSuccess(w, r, map[string]any{"user": updated})
	}
}

// deleteObjectAsync removes an object without holding up the response.
func deleteObjectAsync(deps *AppDeps, key string) {
	go func(k string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := deps.StorageService.Delete(ctx, k); err != nil {
			logx.Warn("failed to delete stale object", "key", k, "error", err.Error())
		}
	}(key)
}
