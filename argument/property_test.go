package argument

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropertyName(t *testing.T) {
	tests := map[string]string{
		"GetBestFriend": "bestFriend",
		"SetName":       "name",
		"IsActive":      "active",
		"Age":           "age",
		"Getaway":       "getaway",
		"Issue":         "issue",
		"Get":           "get",
		"Is":            "is",
		"URL":           "uRL",
		"GetÉcole":      "école",
		"":              "",
	}
	for method, want := range tests {
		assert.Equal(t, want, PropertyName(method), method)
	}
}

func TestLowerFirstChar(t *testing.T) {
	assert.Equal(t, "", LowerFirstChar(""))
	assert.Equal(t, "x", LowerFirstChar("X"))
	assert.Equal(t, "already", LowerFirstChar("already"))
	assert.Equal(t, "ñandu", LowerFirstChar("Ñandu"))
}
