/*
Package randx provides functions for generating cryptographically secure random strings and identifiers.

It is used for attachment object keys, client-side temporary message ids, and the canonical
UUID identifiers of users and messages.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"path"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// ObjectNameLength is the length of the random part of an object key.
	ObjectNameLength = 20

	// TempIDPrefix marks ids that were minted client-side and never persisted.
	TempIDPrefix = "tmp_"

	// TempIDRawLength is the fixed length of the Base62 part of a temporary id.
	TempIDRawLength = 12
)

// Base62 returns a random Base62 string of the given length using crypto/rand.
func Base62(length int) (string, error) {
	result := make([]byte, length)

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %v", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// ObjectKey builds an unguessable storage key such as "attachments/<owner>/<random>.png".
func ObjectKey(folder, ownerID, ext string) (string, error) {
	name, err := Base62(ObjectNameLength)
	if err != nil {
		return "", err
	}

	return path.Join(folder, ownerID, name+strings.ToLower(ext)), nil
}

// TempID returns an id for an optimistic, not yet persisted message.
func TempID() string {
	raw, err := Base62(TempIDRawLength)
	if err != nil {
		return TempIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:TempIDRawLength]
	}
	return TempIDPrefix + raw
}

// IsTempID reports whether id was produced by TempID.
func IsTempID(id string) bool {
	if !strings.HasPrefix(id, TempIDPrefix) {
		return false
	}

	rawID := id[len(TempIDPrefix):]
	if len(rawID) != TempIDRawLength {
		return false
	}

	for _, char := range rawID {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

// NewID generates a UUID v4 string used as the identifier of users and messages.
func NewID() string {
	return uuid.New().String()
}

// IsValidID reports whether id is a well-formed UUID.
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
