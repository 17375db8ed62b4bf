package util

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomCode(t *testing.T) {
	pattern := regexp.MustCompile(`^F-[A-Z0-9]{6}$`)
	for range 50 {
		assert.Regexp(t, pattern, RandomCode("F-", 6))
	}
}

func TestShareToken(t *testing.T) {
	token := ShareToken()
	assert.True(t, strings.HasPrefix(token, "sh_"))
	assert.Len(t, token, 3+24)
	assert.NotEqual(t, token, ShareToken())
}

func TestNewUUID(t *testing.T) {
	id := NewUUID()
	assert.True(t, IsUUID(id))
	assert.False(t, IsUUID("F-ABC123"))
}

func TestNewID(t *testing.T) {
	assert.Regexp(t, `^req_[0-9a-f]{32}$`, NewID("req"))
	assert.Len(t, NewID(""), 32)
}
