package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key, err := ObjectKey("attachments", "u1", ".PNG")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "attachments/u1/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Len(t, key, len("attachments/u1/")+ObjectNameLength+len(".png"))

	other, err := ObjectKey("attachments", "u1", ".png")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestTempID(t *testing.T) {
	id := TempID()
	assert.True(t, IsTempID(id))
	assert.False(t, IsTempID(NewID()))
	assert.False(t, IsTempID("tmp_short"))
	assert.False(t, IsTempID("tmp_!!!!!!!!!!!!"))
}

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID(NewID()))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID("64b7f0c2e1a2b3c4d5e6f7a8"))
	assert.False(t, IsValidID("{"+NewID()+"}"))
}
