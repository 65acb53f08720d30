package utils

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID(t *testing.T) {
	valid := []string{"u1", "user_42", "a", "a.b:c-d", strings.Repeat("x", 64)}
	invalid := []string{"", "_lead", "-lead", "has space", "slash/id", strings.Repeat("x", 65)}

	for _, id := range valid {
		assert.True(t, ValidateID(id), id)
	}
	for _, id := range invalid {
		assert.False(t, ValidateID(id), id)
	}
}

func TestNormalizeGroupName(t *testing.T) {
	name, ok := NormalizeGroupName("  Team  ")
	assert.True(t, ok)
	assert.Equal(t, "Team", name)

	_, ok = NormalizeGroupName("   ")
	assert.False(t, ok)

	_, ok = NormalizeGroupName(strings.Repeat("群", 64))
	assert.True(t, ok)

	_, ok = NormalizeGroupName(strings.Repeat("群", 65))
	assert.False(t, ok)
}

func TestLengthLimits(t *testing.T) {
	assert.True(t, ValidateDescription(""))
	assert.True(t, ValidateDescription(strings.Repeat("d", 500)))
	assert.False(t, ValidateDescription(strings.Repeat("d", 501)))

	assert.True(t, ValidateCustomTitle(strings.Repeat("t", 25)))
	assert.False(t, ValidateCustomTitle(strings.Repeat("t", 26)))

	assert.False(t, ValidateAnnouncement(""))
	assert.False(t, ValidateAnnouncement(" \n "))
	assert.True(t, ValidateAnnouncement("hello"))
	assert.True(t, ValidateAnnouncement(strings.Repeat("a", 4096)))
	assert.False(t, ValidateAnnouncement(strings.Repeat("a", 4097)))
}

func TestInvalidUTF8(t *testing.T) {
	bad := "ab\xff\xfe"

	_, ok := NormalizeGroupName(bad)
	assert.False(t, ok)
	assert.False(t, ValidateDescription(bad))
	assert.False(t, ValidateCustomTitle(bad))
	assert.False(t, ValidateAnnouncement(bad))
}

func TestGenerateInviteCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		code, err := GenerateInviteCode()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(code)
		require.NoError(t, err)
		assert.Len(t, raw, InviteCodeBytes)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}
