package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dmchat/internal/app/chat"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

// HandleGetRoster returns every other user, unseen counts per sender and the online set.
// Fetching the roster delivers everything still pending for the caller.
func HandleGetRoster(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		roster, err := deps.Chat.Roster(r.Context(), identity.ID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, roster)
	}
}

// HandleGetMessages returns the conversation with {id} and marks it seen.
func HandleGetMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		messages, err := deps.Chat.History(r.Context(), identity.ID, chi.URLParam(r, "id"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messages": messages})
	}
}

// HandleMarkSeen marks message {id} as seen by the caller.
func HandleMarkSeen(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		if err := deps.Chat.MarkSeen(r.Context(), identity.ID, chi.URLParam(r, "id")); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// SendMessageInput is the JSON form of a send. The attachment is a data URI in either
// image (images only, kept for older clients) or file.
type SendMessageInput struct {
	Text     string `json:"text"`
	Image    string `json:"image"`
	File     string `json:"file"`
	FileType string `json:"fileType"`
}

// HandleSendMessage sends a message to user {id}. It accepts JSON with an inline data URI
// or multipart form data with "text" and "file" fields.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var (
			in        chat.SendInput
			customErr *errs.CustomError
		)
		if req.IsMultipart(r) {
			in, customErr = bindMultipartSend(w, r)
		} else {
			in, customErr = bindJSONSend(w, r)
		}
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Chat.Send(r.Context(), identity.ID, chi.URLParam(r, "id"), in)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"newMessage": msg})
	}
}

func bindJSONSend(w http.ResponseWriter, r *http.Request) (chat.SendInput, *errs.CustomError) {
	var input SendMessageInput
	if customErr := req.BindLargeJSON(w, r, &input); customErr != nil {
		return chat.SendInput{}, customErr
	}

	in := chat.SendInput{Text: input.Text}

	uri := input.File
	if uri == "" {
		uri = input.Image
	}
	if uri == "" {
		return in, nil
	}

	upload, customErr := chat.DecodeDataURI(uri)
	if customErr != nil {
		return chat.SendInput{}, customErr
	}
	if input.FileType != "" && string(upload.Kind) != input.FileType {
		return chat.SendInput{}, errs.NewError(errs.ErrAttachmentInvalid)
	}

	in.Attachment = upload
	return in, nil
}

func bindMultipartSend(w http.ResponseWriter, r *http.Request) (chat.SendInput, *errs.CustomError) {
	if customErr := req.SetupMultipart(w, r); customErr != nil {
		return chat.SendInput{}, customErr
	}
	defer r.MultipartForm.RemoveAll()

	in := chat.SendInput{Text: r.FormValue("text")}

	file, header, err := r.FormFile("file")
	if err == http.ErrMissingFile {
		return in, nil
	}
	if err != nil {
		return chat.SendInput{}, errs.NewError(errs.ErrFormParseFailed)
	}
	defer file.Close()

	upload, customErr := chat.UploadFromMultipart(file, header)
	if customErr != nil {
		return chat.SendInput{}, customErr
	}

	in.Attachment = upload
	return in, nil
}
