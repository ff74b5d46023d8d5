package feedclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgesync/backend/internal/domain/sync"
)

func gzipBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestFileName(t *testing.T) {
	asOf := time.Date(2025, 3, 7, 14, 30, 0, 0, time.UTC)

	t.Run("full feed is dated to the day", func(t *testing.T) {
		name, err := FileName(CatalogFull, asOf)
		require.NoError(t, err)
		assert.Equal(t, "full-20250307.csv.gz", name)
	})

	t.Run("segment feed is dated to the hour", func(t *testing.T) {
		name, err := FileName(CatalogSegment, asOf)
		require.NoError(t, err)
		assert.Equal(t, "segment-20250307_14.csv.gz", name)
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		_, err := FileName(CatalogType("weekly"), asOf)
		assert.ErrorIs(t, err, ErrInvalidCatalogType)
	})
}

func TestClient_Fetch(t *testing.T) {
	asOf := time.Date(2025, 3, 7, 14, 0, 0, 0, time.UTC)
	body := "id,name\n100,Widget\n"

	t.Run("downloads and decompresses a gzip feed", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			assert.Equal(t, "/catalog/full/full-20250307.csv.gz", r.URL.Path)
			w.Write(gzipBytes(t, body))
		}))
		defer srv.Close()

		workDir := t.TempDir()
		client := NewClient(Config{BaseURL: srv.URL, WorkDir: workDir},
			NewSignedAuthHeader("ak", "sk"))

		path, err := client.Fetch(context.Background(), CatalogFull, asOf)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, body, string(data))
		assert.Equal(t, filepath.Join(workDir, "full-20250307.csv"), path)
		assert.True(t, strings.HasPrefix(gotAuth, "Bearer "))

		entries, err := os.ReadDir(workDir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files must be cleaned up")
	})

	t.Run("requests the per-type catalog path", func(t *testing.T) {
		var paths []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			w.Write(gzipBytes(t, body))
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL + "/", WorkDir: t.TempDir()}, nil)

		_, err := client.Fetch(context.Background(), CatalogFull, asOf)
		require.NoError(t, err)
		_, err = client.Fetch(context.Background(), CatalogSegment, asOf)
		require.NoError(t, err)

		assert.Equal(t, []string{
			"/catalog/full/full-20250307.csv.gz",
			"/catalog/segment/segment-20250307_14.csv.gz",
		}, paths)
	})

	t.Run("accepts an uncompressed feed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, WorkDir: t.TempDir()}, nil)

		path, err := client.Fetch(context.Background(), CatalogSegment, asOf)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, body, string(data))
	})

	t.Run("empty feed is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(gzipBytes(t, ""))
		}))
		defer srv.Close()

		workDir := t.TempDir()
		client := NewClient(Config{BaseURL: srv.URL, WorkDir: workDir}, nil)

		_, err := client.Fetch(context.Background(), CatalogFull, asOf)
		assert.ErrorIs(t, err, ErrEmptyFeed)

		entries, readErr := os.ReadDir(workDir)
		require.NoError(t, readErr)
		assert.Empty(t, entries, "no files should remain after a failed fetch")
	})

	t.Run("server error classifies as unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, WorkDir: t.TempDir()}, nil)

		_, err := client.Fetch(context.Background(), CatalogFull, asOf)
		assert.ErrorIs(t, err, sync.ErrPlatformUnavailable)

		var fetchErr *FetchError
		assert.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, "download", fetchErr.Stage)
	})

	t.Run("rate limit carries retry-after hint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, WorkDir: t.TempDir()}, nil)

		_, err := client.Fetch(context.Background(), CatalogFull, asOf)
		assert.True(t, sync.IsRetryable(err))
		assert.Equal(t, 7*time.Second, sync.RetryAfterHint(err))
	})

	t.Run("missing feed classifies as request failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, WorkDir: t.TempDir()}, nil)

		_, err := client.Fetch(context.Background(), CatalogFull, asOf)
		assert.ErrorIs(t, err, sync.ErrPlatformRequestFailed)
		assert.False(t, sync.IsRetryable(err))
	})

	t.Run("archiver failure does not fail the fetch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(gzipBytes(t, body))
		}))
		defer srv.Close()

		arch := &recordingArchiver{err: assert.AnError}
		client := NewClient(Config{BaseURL: srv.URL, WorkDir: t.TempDir()}, nil,
			WithArchiver(arch),
			WithClock(func() time.Time { return asOf }))

		path, err := client.Fetch(context.Background(), CatalogFull, asOf)
		require.NoError(t, err)
		assert.NotEmpty(t, path)
		assert.Equal(t, "feeds/2025/03/07/full-20250307.csv", arch.key)
	})
}

func TestNewSignedAuthHeader(t *testing.T) {
	t.Run("produces unique bearer tokens", func(t *testing.T) {
		auth := NewSignedAuthHeader("ak", "sk")

		first, err := auth()
		require.NoError(t, err)
		second, err := auth()
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(first, "Bearer "))
		assert.NotEqual(t, first, second)
	})

	t.Run("rejects missing credentials", func(t *testing.T) {
		_, err := NewSignedAuthHeader("", "")()
		assert.Error(t, err)
	})
}

type recordingArchiver struct {
	key string
	err error
}

func (a *recordingArchiver) ArchiveFeed(_ context.Context, _, key string) error {
	a.key = key
	return a.err
}
