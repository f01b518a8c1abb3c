package images

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingUploader captures the uploaded object.
type recordingUploader struct {
	key         string
	body        []byte
	contentType string
}

func (u *recordingUploader) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	u.key = key
	u.body = body
	u.contentType = contentType
	return "https://listing-images.s3.us-west-2.amazonaws.com/" + key, nil
}

func servePNG(t *testing.T, width, height int) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
}

func TestPipeline_Process(t *testing.T) {
	server := servePNG(t, 2000, 1200)
	defer server.Close()

	uploader := &recordingUploader{}
	pipeline := NewPipeline(uploader, 10*time.Second, 1280, 720, 80)

	storageURL, err := pipeline.Process(context.Background(), server.URL+"/photos/house-42.png")
	require.NoError(t, err)

	assert.Equal(t, "properties/house-42.jpg", uploader.key)
	assert.Equal(t, "image/jpeg", uploader.contentType)
	assert.Equal(t, "https://listing-images.s3.us-west-2.amazonaws.com/properties/house-42.jpg", storageURL)

	// Fit into 1280x720 preserving aspect ratio: 2000x1200 -> 1200x720
	decoded, err := imaging.Decode(bytes.NewReader(uploader.body))
	require.NoError(t, err)
	assert.Equal(t, 1200, decoded.Bounds().Dx())
	assert.Equal(t, 720, decoded.Bounds().Dy())
}

func TestPipeline_NoUpscaling(t *testing.T) {
	server := servePNG(t, 100, 80)
	defer server.Close()

	uploader := &recordingUploader{}
	pipeline := NewPipeline(uploader, 10*time.Second, 1280, 720, 80)

	_, err := pipeline.Process(context.Background(), server.URL+"/small.png")
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(uploader.body))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 80, decoded.Bounds().Dy())
}

func TestPipeline_DownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	pipeline := NewPipeline(&recordingUploader{}, 10*time.Second, 1280, 720, 80)

	_, err := pipeline.Process(context.Background(), server.URL+"/gone.png")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestPipeline_UndecodableSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an image"))
	}))
	defer server.Close()

	pipeline := NewPipeline(&recordingUploader{}, 10*time.Second, 1280, 720, 80)

	_, err := pipeline.Process(context.Background(), server.URL+"/junk.png")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		sourceURL string
		want      string
	}{
		{"http://photos.example.com/listings/1.png", "properties/1.jpg"},
		{"http://photos.example.com/listings/house.jpeg?size=large", "properties/house.jpg"},
		{"http://photos.example.com/noext", "properties/noext.jpg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectKey(tt.sourceURL))
	}
}
