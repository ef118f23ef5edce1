/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrFormParseFailed:       {Code: ErrFormParseFailed, Message: "Failed to process uploaded data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Message and Content Business Logic Errors
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long.", Status: http.StatusBadRequest},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message must contain text or a file.", Status: http.StatusBadRequest},
	ErrAttachmentInvalid:     {Code: ErrAttachmentInvalid, Message: "Unsupported file. Send an image, a video or a PDF.", Status: http.StatusBadRequest},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Message: "File is too large (max %d MB).", Status: http.StatusBadRequest},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Message: "Message not found.", Status: http.StatusNotFound},

	// 3xxx: User, Session, and Security Errors
	ErrPowChallengeRequired: {Code: ErrPowChallengeRequired, Message: "Verification required. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInvalid:  {Code: ErrPowChallengeInvalid, Message: "Verification failed. Please try again.", Status: http.StatusBadRequest},
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrForbidden:            {Code: ErrForbidden, Message: "Not authorized.", Status: http.StatusForbidden},
	ErrMissingDetails:       {Code: ErrMissingDetails, Message: "Missing details.", Status: http.StatusBadRequest},
	ErrInvalidEmail:         {Code: ErrInvalidEmail, Message: "Invalid email address.", Status: http.StatusBadRequest},
	ErrInvalidPassword:      {Code: ErrInvalidPassword, Message: "Password must be between %d and %d characters.", Status: http.StatusBadRequest},
	ErrUserAlreadyExists:    {Code: ErrUserAlreadyExists, Message: "Account already exists.", Status: http.StatusConflict},
	ErrUserNotFound:         {Code: ErrUserNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Message: "Invalid credentials.", Status: http.StatusUnauthorized},
	ErrNothingToUpdate:      {Code: ErrNothingToUpdate, Message: "Nothing to update.", Status: http.StatusBadRequest},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File upload failed. Please try again.", Status: http.StatusBadGateway},
}
