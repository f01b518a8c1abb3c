package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefeed/listing-ingestion-service/internal/config"
)

func TestS3Storage_KeyFromURL(t *testing.T) {
	store, err := NewS3Storage(config.ImageConfig{
		Bucket: "listing-images",
		Region: "us-west-2",
	})
	require.NoError(t, err)

	key, ok := store.KeyFromURL("https://listing-images.s3.us-west-2.amazonaws.com/properties/1.jpg")
	assert.True(t, ok)
	assert.Equal(t, "properties/1.jpg", key)

	// URLs matching no known prefix are skipped by callers
	_, ok = store.KeyFromURL("https://cdn.example.com/properties/1.jpg")
	assert.False(t, ok)

	_, ok = store.KeyFromURL("https://listing-images.s3.us-west-2.amazonaws.com/")
	assert.False(t, ok)
}

func TestS3Storage_PathStyleEndpoint(t *testing.T) {
	store, err := NewS3Storage(config.ImageConfig{
		Bucket:   "listing-images",
		Region:   "us-west-2",
		Endpoint: "http://localhost:9000",
	})
	require.NoError(t, err)

	key, ok := store.KeyFromURL("http://localhost:9000/listing-images/properties/1.jpg")
	assert.True(t, ok)
	assert.Equal(t, "properties/1.jpg", key)
}
