package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/app/chat"
	"dmchat/internal/app/message"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/randx"
)

type sentResponse struct {
	NewMessage message.Message `json:"newMessage"`
}

type historyResponse struct {
	Messages []message.Message `json:"messages"`
}

func TestSendAndReadConversation(t *testing.T) {
	app := newTestApp(t, 0)
	ana, anaToken := app.addUser("ana")
	bo, boToken := app.addUser("bo")

	res := app.do(http.MethodPost, "/api/messages/send/"+bo.ID, anaToken, SendMessageInput{Text: "  hi bo  "})
	require.Equal(t, http.StatusOK, res.Status, res.Message)

	sent := decodeData[sentResponse](t, res).NewMessage
	assert.Equal(t, "hi bo", sent.Text)
	assert.Equal(t, ana.ID, sent.SenderID)
	assert.Equal(t, bo.ID, sent.ReceiverID)
	assert.False(t, sent.Delivered, "receiver is offline")

	res = app.do(http.MethodGet, "/api/messages/users", boToken, nil)
	require.Equal(t, http.StatusOK, res.Status, res.Message)

	roster := decodeData[chat.Roster](t, res)
	require.Len(t, roster.Users, 1)
	assert.Equal(t, ana.ID, roster.Users[0].ID)
	assert.Equal(t, 1, roster.UnseenMessages[ana.ID])

	stored, err := app.store.GetMessage(testContext(t), sent.ID)
	require.NoError(t, err)
	assert.True(t, stored.Delivered, "roster fetch delivers pending messages")
	assert.False(t, stored.Seen)

	res = app.do(http.MethodGet, "/api/messages/"+ana.ID, boToken, nil)
	require.Equal(t, http.StatusOK, res.Status, res.Message)

	history := decodeData[historyResponse](t, res).Messages
	require.Len(t, history, 1)
	assert.True(t, history[0].Seen)
	assert.Equal(t, message.StateSeen, history[0].State())

	res = app.do(http.MethodGet, "/api/messages/users", boToken, nil)
	assert.Zero(t, decodeData[chat.Roster](t, res).UnseenMessages[ana.ID])
}

func TestSendMessage_Errors(t *testing.T) {
	app := newTestApp(t, 0)
	ana, anaToken := app.addUser("ana")
	bo, _ := app.addUser("bo")

	tests := []struct {
		name   string
		path   string
		body   SendMessageInput
		status int
		code   int
	}{
		{"empty", "/api/messages/send/" + bo.ID, SendMessageInput{Text: "   "}, http.StatusBadRequest, errs.ErrMessageEmpty},
		{"too long", "/api/messages/send/" + bo.ID, SendMessageInput{Text: strings.Repeat("a", message.MaxTextBytes+1)}, http.StatusBadRequest, errs.ErrMessageContentTooLong},
		{"to self", "/api/messages/send/" + ana.ID, SendMessageInput{Text: "me"}, http.StatusBadRequest, errs.ErrInvalidParams},
		{"bad receiver id", "/api/messages/send/nope", SendMessageInput{Text: "hi"}, http.StatusBadRequest, errs.ErrInvalidParams},
		{"unknown receiver", "/api/messages/send/" + randx.NewID(), SendMessageInput{Text: "hi"}, http.StatusNotFound, errs.ErrUserNotFound},
		{"bad attachment", "/api/messages/send/" + bo.ID, SendMessageInput{File: "data:text/plain;base64,aGk="}, http.StatusBadRequest, errs.ErrAttachmentInvalid},
		{"kind mismatch", "/api/messages/send/" + bo.ID, SendMessageInput{File: dataURI("image/png", pngHeader), FileType: "pdf"}, http.StatusBadRequest, errs.ErrAttachmentInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := app.do(http.MethodPost, tt.path, anaToken, tt.body)
			assert.Equal(t, tt.status, res.Status, res.Message)
			assert.Equal(t, tt.code, res.Code)
		})
	}
}

func TestSendMessage_JSONAttachment(t *testing.T) {
	app := newTestApp(t, 0)
	ana, anaToken := app.addUser("ana")
	bo, _ := app.addUser("bo")

	res := app.do(http.MethodPost, "/api/messages/send/"+bo.ID, anaToken, SendMessageInput{Image: dataURI("image/png", pngHeader)})
	require.Equal(t, http.StatusOK, res.Status, res.Message)

	sent := decodeData[sentResponse](t, res).NewMessage
	require.NotNil(t, sent.Attachment)
	assert.Equal(t, message.KindImage, sent.Attachment.Kind)
	assert.True(t, strings.HasPrefix(sent.Attachment.URL, testCDNBase+"/"), sent.Attachment.URL)
	assert.Contains(t, sent.Attachment.URL, ana.ID)
	assert.Empty(t, sent.Text)
}

func TestSendMessage_Multipart(t *testing.T) {
	app := newTestApp(t, 0)
	_, anaToken := app.addUser("ana")
	bo, _ := app.addUser("bo")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("text", "the contract"))

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="contract.pdf"`)
	header.Set("Content-Type", "application/pdf")
	part, err := form.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.7 contract"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/messages/send/"+bo.ID, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+anaToken)

	res := app.send(req)
	require.Equal(t, http.StatusOK, res.Status, res.Message)

	sent := decodeData[sentResponse](t, res).NewMessage
	assert.Equal(t, "the contract", sent.Text)
	require.NotNil(t, sent.Attachment)
	assert.Equal(t, message.KindPDF, sent.Attachment.Kind)
	assert.True(t, strings.HasSuffix(sent.Attachment.URL, ".pdf"), sent.Attachment.URL)
}

func TestMarkSeen(t *testing.T) {
	app := newTestApp(t, 0)
	_, anaToken := app.addUser("ana")
	bo, boToken := app.addUser("bo")
	_, cyToken := app.addUser("cy")

	res := app.do(http.MethodPost, "/api/messages/send/"+bo.ID, anaToken, SendMessageInput{Text: "hi"})
	require.Equal(t, http.StatusOK, res.Status, res.Message)
	sent := decodeData[sentResponse](t, res).NewMessage

	res = app.do(http.MethodPut, "/api/messages/mark/"+sent.ID, cyToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, errs.ErrForbidden, res.Code)

	res = app.do(http.MethodPut, "/api/messages/mark/"+sent.ID, anaToken, nil)
	assert.Equal(t, errs.ErrForbidden, res.Code, "the sender cannot mark its own message seen")

	res = app.do(http.MethodPut, "/api/messages/mark/"+randx.NewID(), boToken, nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, errs.ErrMessageNotFound, res.Code)

	for i := 0; i < 2; i++ {
		res = app.do(http.MethodPut, "/api/messages/mark/"+sent.ID, boToken, nil)
		assert.Equal(t, http.StatusOK, res.Status, res.Message)
	}

	stored, err := app.store.GetMessage(testContext(t), sent.ID)
	require.NoError(t, err)
	assert.True(t, stored.Seen)
	assert.True(t, stored.Delivered)
}

func TestMessages_RequireIdentity(t *testing.T) {
	app := newTestApp(t, 0)

	res := app.do(http.MethodGet, "/api/messages/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, errs.ErrUnauthorized, res.Code)

	_, token := app.addUser("ana")
	res = app.do(http.MethodGet, "/api/messages/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, errs.ErrInvalidParams, res.Code)
}
