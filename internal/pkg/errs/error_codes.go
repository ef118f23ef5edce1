/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed (including malformed identifiers).
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrFormParseFailed indicates failure to parse multipart or URL-encoded form data.
	ErrFormParseFailed = 1005

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Message and Content Business Logic Errors
const (
	// ErrMessageContentTooLong indicates that the user's message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates a message with neither text nor an attachment.
	ErrMessageEmpty = 2202

	// ErrAttachmentInvalid indicates an attachment that is not a well-formed data URI or has an unsupported kind.
	ErrAttachmentInvalid = 2203

	// ErrFileSizeTooLarge indicates that an attachment exceeded the maximum allowed size.
	ErrFileSizeTooLarge = 2204

	// ErrMessageNotFound indicates that the referenced message does not exist.
	ErrMessageNotFound = 2301
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3002

	// ErrUnauthorized indicates a missing, invalid or expired identity token.
	ErrUnauthorized = 3004

	// ErrForbidden indicates an authenticated user acting on a resource they do not own.
	ErrForbidden = 3005

	// ErrMissingDetails indicates that a required account field was left empty.
	ErrMissingDetails = 3006

	// ErrInvalidEmail indicates an email address that does not look like one.
	ErrInvalidEmail = 3007

	// ErrInvalidPassword indicates a password outside the accepted length range.
	ErrInvalidPassword = 3008

	// ErrUserAlreadyExists indicates that an account with the same email already exists.
	ErrUserAlreadyExists = 3009

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = 3010

	// ErrInvalidCredentials indicates an email/password pair that does not match.
	ErrInvalidCredentials = 3011

	// ErrNothingToUpdate indicates a profile update request without any field set.
	ErrNothingToUpdate = 3012
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates the attachment store rejected or failed an operation.
	ErrFileStorageFailed = 5001
)
