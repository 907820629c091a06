package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublicURLResolverRelative(t *testing.T) {
	resolver := NewPublicURLResolver("https://archive.example.edu/images/")
	require.Equal(t, "https://archive.example.edu/images/specimens/giardia.jpg", resolver.Resolve("specimens/giardia.jpg"))
	require.Equal(t, "https://archive.example.edu/images/specimens/giardia.jpg", resolver.Resolve("/specimens/giardia.jpg"))
}

func TestPublicURLResolverAbsolutePassthrough(t *testing.T) {
	resolver := NewPublicURLResolver("https://archive.example.edu/images")
	require.Equal(t, "https://cdn.example.com/x.png", resolver.Resolve("https://cdn.example.com/x.png"))
}

func TestPublicURLResolverEmpty(t *testing.T) {
	resolver := NewPublicURLResolver("https://archive.example.edu/images")
	require.Equal(t, "", resolver.Resolve(""))
}
