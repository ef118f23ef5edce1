package handler

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/errs"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func dataURI(contentType string, raw []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

func TestUpdateProfileInfo(t *testing.T) {
	app := newTestApp(t, 0)
	_, token := app.addUser("ana")

	name := "  Ana Maria "
	res := app.do(http.MethodPut, "/api/auth/update-profile-info", token, UpdateProfileInfoInput{FullName: &name})
	require.Equal(t, http.StatusOK, res.Status, res.Message)

	updated := decodeData[struct {
		User user.User `json:"user"`
	}](t, res).User
	assert.Equal(t, "Ana Maria", updated.FullName)
	assert.Equal(t, "hello", updated.Bio)

	res = app.do(http.MethodPut, "/api/auth/update-profile-info", token, UpdateProfileInfoInput{})
	assert.Equal(t, errs.ErrNothingToUpdate, res.Code)

	res = app.do(http.MethodPut, "/api/auth/update-profile-info", "", UpdateProfileInfoInput{FullName: &name})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestUpdateProfileImage(t *testing.T) {
	app := newTestApp(t, 0)
	u, token := app.addUser("ana")

	res := app.do(http.MethodPut, "/api/auth/update-profile-image", token, UpdateProfileImageInput{ProfilePic: dataURI("image/png", pngHeader)})
	require.Equal(t, http.StatusOK, res.Status, res.Message)

	first := decodeData[struct {
		User user.User `json:"user"`
	}](t, res).User
	require.True(t, strings.HasPrefix(first.ProfilePic, testCDNBase+"/profiles/"+u.ID+"/"), first.ProfilePic)
	firstKey, ok := app.storage.KeyFromURL(first.ProfilePic)
	require.True(t, ok)

	res = app.do(http.MethodPut, "/api/auth/update-profile-image", token, UpdateProfileImageInput{ProfilePic: dataURI("image/png", pngHeader)})
	require.Equal(t, http.StatusOK, res.Status, res.Message)

	second := decodeData[struct {
		User user.User `json:"user"`
	}](t, res).User
	assert.NotEqual(t, first.ProfilePic, second.ProfilePic)

	assert.Eventually(t, func() bool {
		for _, key := range app.storage.deletedKeys() {
			if key == firstKey {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "previous avatar is removed")
}

func TestUpdateProfileImage_Rejects(t *testing.T) {
	app := newTestApp(t, 0)
	_, token := app.addUser("ana")

	tests := []struct {
		name string
		pic  string
		code int
	}{
		{"missing", "", errs.ErrMissingDetails},
		{"not a data uri", "https://example.com/a.png", errs.ErrAttachmentInvalid},
		{"pdf", dataURI("application/pdf", []byte("%PDF-1.7")), errs.ErrAttachmentInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := app.do(http.MethodPut, "/api/auth/update-profile-image", token, UpdateProfileImageInput{ProfilePic: tt.pic})
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, http.StatusBadRequest, res.Status)
		})
	}
}
