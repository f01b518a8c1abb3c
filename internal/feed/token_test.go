package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, expiresIn int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "test-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "test-secret", r.PostForm.Get("client_secret"))

		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": fmt.Sprintf("token-%d", n),
			"expires_in":   expiresIn,
		})
	}))
}

func TestTokenClient_CachesValidToken(t *testing.T) {
	var calls int32
	server := newTokenServer(t, 3600, &calls)
	defer server.Close()

	client := NewTokenClient(server.URL, "test-id", "test-secret", 5*time.Second)

	ctx := context.Background()
	first, err := client.Token(ctx)
	require.NoError(t, err)

	second, err := client.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenClient_RefreshesNearExpiry(t *testing.T) {
	var calls int32
	// 200s remaining is below the 5 minute threshold, so every call refreshes
	server := newTokenServer(t, 200, &calls)
	defer server.Close()

	client := NewTokenClient(server.URL, "test-id", "test-secret", 5*time.Second)

	ctx := context.Background()
	_, err := client.Token(ctx)
	require.NoError(t, err)

	_, err = client.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenClient_SingleFlight(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond) // hold concurrent callers in flight
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "shared-token",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	client := NewTokenClient(server.URL, "test-id", "test-secret", 5*time.Second)

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := client.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, token := range tokens {
		assert.Equal(t, "shared-token", token)
	}
}

func TestTokenClient_RefreshFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewTokenClient(server.URL, "test-id", "test-secret", 5*time.Second)

	_, err := client.Token(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestTokenClient_FailedRefreshKeepsCachedToken(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "good-token",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	client := NewTokenClient(server.URL, "test-id", "test-secret", 5*time.Second)

	ctx := context.Background()
	token, err := client.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "good-token", token)

	// A still-valid cached token survives endpoint outages.
	fail.Store(true)
	token, err = client.Token(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "good-token", token)
}

func TestTokenClient_MissingFieldsIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"token_type": "Bearer"})
	}))
	defer server.Close()

	client := NewTokenClient(server.URL, "test-id", "test-secret", 5*time.Second)

	_, err := client.Token(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing access_token")
}
