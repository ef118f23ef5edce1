package chat

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"dmchat/internal/app/message"
	"dmchat/internal/pkg/errs"
)

// sniffLen is the number of leading bytes http.DetectContentType inspects.
const sniffLen = 512

// MIMEToExt maps common attachment MIME types to the extension used for object keys.
var MIMEToExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"image/svg+xml":   ".svg",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"application/pdf": ".pdf",
}

// Upload is a decoded attachment ready to be streamed to object storage.
type Upload struct {
	Body        io.Reader
	Size        int64
	ContentType string
	Kind        message.Kind
	Ext         string
}

// DecodeDataURI parses a base64 data URI ("data:<mime>;base64,<data>") into an Upload.
func DecodeDataURI(uri string) (*Upload, *errs.CustomError) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return nil, errs.NewError(errs.ErrAttachmentInvalid)
	}

	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errs.NewError(errs.ErrAttachmentInvalid)
	}

	contentType, encoding, _ := strings.Cut(meta, ";")
	if !strings.EqualFold(strings.TrimSpace(encoding), "base64") {
		return nil, errs.NewError(errs.ErrAttachmentInvalid)
	}

	if int64(base64.StdEncoding.DecodedLen(len(data))) > message.MaxAttachmentSize+2 {
		return nil, errs.NewError(errs.ErrFileSizeTooLarge, message.MaxAttachmentSizeMB)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, errs.NewError(errs.ErrAttachmentInvalid)
	}

	return newUpload(raw, contentType, "")
}

// UploadFromMultipart reads a multipart file part into an Upload. The declared content
// type is verified against the sniffed one when the client sent something generic.
func UploadFromMultipart(file multipart.File, header *multipart.FileHeader) (*Upload, *errs.CustomError) {
	if header.Size > message.MaxAttachmentSize {
		return nil, errs.NewError(errs.ErrFileSizeTooLarge, message.MaxAttachmentSizeMB)
	}

	raw, err := io.ReadAll(io.LimitReader(file, message.MaxAttachmentSize+1))
	if err != nil {
		return nil, errs.NewError(errs.ErrAttachmentInvalid)
	}

	return newUpload(raw, header.Header.Get("Content-Type"), header.Filename)
}

func newUpload(raw []byte, contentType, fileName string) (*Upload, *errs.CustomError) {
	if len(raw) == 0 {
		return nil, errs.NewError(errs.ErrAttachmentInvalid)
	}
	if len(raw) > message.MaxAttachmentSize {
		return nil, errs.NewError(errs.ErrFileSizeTooLarge, message.MaxAttachmentSizeMB)
	}

	contentType = normalizeContentType(contentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = normalizeContentType(http.DetectContentType(raw[:min(len(raw), sniffLen)]))
	}

	kind, ok := message.KindFromMIME(contentType)
	if !ok {
		return nil, errs.NewError(errs.ErrAttachmentInvalid)
	}

	return &Upload{
		Body:        bytes.NewReader(raw),
		Size:        int64(len(raw)),
		ContentType: contentType,
		Kind:        kind,
		Ext:         extensionFor(contentType, fileName),
	}, nil
}

func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mediaType
}

// extensionFor picks the object key extension for a content type, falling back to the file name.
func extensionFor(contentType, fileName string) string {
	if ext, ok := MIMEToExt[contentType]; ok {
		return ext
	}
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
