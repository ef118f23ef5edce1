package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicURLs(t *testing.T) {
	p := publicURLs{base: "https://cdn.example.com/chat/"}

	url := p.URL("/messages/u1/abc.png")
	assert.Equal(t, "https://cdn.example.com/chat/messages/u1/abc.png", url)

	key, ok := p.KeyFromURL(url)
	assert.True(t, ok)
	assert.Equal(t, "messages/u1/abc.png", key)

	tests := []string{
		"https://elsewhere.example.com/chat/messages/u1/abc.png",
		"https://cdn.example.com/chat/",
		"https://cdn.example.com/chat/../secret",
		"",
	}
	for _, u := range tests {
		_, ok := p.KeyFromURL(u)
		assert.False(t, ok, u)
	}

	_, ok = publicURLs{}.KeyFromURL("https://cdn.example.com/x")
	assert.False(t, ok)
}
