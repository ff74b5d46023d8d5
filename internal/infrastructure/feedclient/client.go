package feedclient

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bridgesync/backend/internal/domain/sync"
)

// CatalogType selects which feed variant to download.
type CatalogType string

const (
	// CatalogFull is the complete daily catalog snapshot.
	CatalogFull CatalogType = "full"
	// CatalogSegment is the hourly incremental feed.
	CatalogSegment CatalogType = "segment"
)

var (
	// ErrInvalidCatalogType is returned for a CatalogType outside the
	// known set.
	ErrInvalidCatalogType = errors.New("feedclient: invalid catalog type")
	// ErrEmptyFeed is returned when the downloaded feed decompresses to
	// zero bytes.
	ErrEmptyFeed = errors.New("feedclient: feed file is empty")
)

// FetchError wraps any failure during feed download or decompression with
// the stage it occurred in. It unwraps to the underlying cause so callers
// can still classify rate limits and outages.
type FetchError struct {
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("feedclient: %s: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Archiver stores a fetched feed file in durable storage. Archival is best
// effort and never fails a fetch.
type Archiver interface {
	ArchiveFeed(ctx context.Context, localPath, objectKey string) error
}

// Config holds the feed endpoint settings.
type Config struct {
	BaseURL string
	WorkDir string
	Timeout time.Duration
}

// Client downloads gzip CSV catalog feeds to local files.
type Client struct {
	cfg        Config
	httpClient *http.Client
	authHeader AuthHeaderFunc
	archiver   Archiver
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithArchiver enables best-effort archival of fetched feeds.
func WithArchiver(a Archiver) Option {
	return func(c *Client) { c.archiver = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a feed client. authHeader signs every request.
func NewClient(cfg Config, authHeader AuthHeaderFunc, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		authHeader: authHeader,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FileName returns the feed file name for the given type and reference
// time. Full feeds are dated to the day, segment feeds to the hour.
func FileName(catalogType CatalogType, asOf time.Time) (string, error) {
	switch catalogType {
	case CatalogFull:
		return "full-" + asOf.Format("20060102") + ".csv.gz", nil
	case CatalogSegment:
		return "segment-" + asOf.Format("20060102_15") + ".csv.gz", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCatalogType, catalogType)
	}
}

// Fetch downloads the feed for catalogType as of asOf, decompresses it if
// needed, and returns the path of the local CSV file. The caller owns the
// returned file and should remove it when done.
func (c *Client) Fetch(ctx context.Context, catalogType CatalogType, asOf time.Time) (string, error) {
	name, err := FileName(catalogType, asOf)
	if err != nil {
		return "", err
	}

	tmpPath, err := c.download(ctx, catalogType, name)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpPath)

	finalPath := filepath.Join(c.cfg.WorkDir, strings.TrimSuffix(name, ".gz"))
	compressed, err := isGzip(tmpPath)
	if err != nil {
		return "", &FetchError{Stage: "inspect", Err: err}
	}

	if compressed {
		if err := decompress(tmpPath, finalPath); err != nil {
			os.Remove(finalPath)
			return "", &FetchError{Stage: "decompress", Err: err}
		}
	} else {
		if err := os.Rename(tmpPath, finalPath); err != nil {
			return "", &FetchError{Stage: "rename", Err: err}
		}
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return "", &FetchError{Stage: "stat", Err: err}
	}
	if info.Size() == 0 {
		os.Remove(finalPath)
		return "", ErrEmptyFeed
	}

	c.archive(ctx, finalPath, name)

	c.logger.Info("feed fetched",
		zap.String("catalog_type", string(catalogType)),
		zap.String("file", finalPath),
		zap.Int64("bytes", info.Size()))
	return finalPath, nil
}

func (c *Client) download(ctx context.Context, catalogType CatalogType, name string) (string, error) {
	// Feed files live under a per-type path: {base}/catalog/{type}/{file}.
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/catalog/" + string(catalogType) + "/" + name

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{Stage: "request", Err: err}
	}
	if c.authHeader != nil {
		header, err := c.authHeader()
		if err != nil {
			return "", &FetchError{Stage: "auth", Err: err}
		}
		req.Header.Set("Authorization", header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{Stage: "download", Err: fmt.Errorf("%w: %v", sync.ErrPlatformUnavailable, err)}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", &FetchError{Stage: "download", Err: err}
	}

	tmp, err := os.CreateTemp(c.cfg.WorkDir, name+".*.tmp")
	if err != nil {
		return "", &FetchError{Stage: "tempfile", Err: err}
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", &FetchError{Stage: "download", Err: fmt.Errorf("%w: %v", sync.ErrPlatformUnavailable, err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", &FetchError{Stage: "tempfile", Err: err}
	}
	return tmp.Name(), nil
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &sync.RateLimitError{RetryAfter: retryAfter}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", sync.ErrPlatformUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", sync.ErrPlatformRequestFailed, resp.StatusCode)
	}
}

var gzipMagic = []byte{0x1f, 0x8b}

func isGzip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, 2)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return n == 2 && header[0] == gzipMagic[0] && header[1] == gzipMagic[1], nil
}

func decompress(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gz.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, gz); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (c *Client) archive(ctx context.Context, localPath, name string) {
	if c.archiver == nil {
		return
	}
	key := "feeds/" + c.now().Format("2006/01/02") + "/" + strings.TrimSuffix(name, ".gz")
	if err := c.archiver.ArchiveFeed(ctx, localPath, key); err != nil {
		c.logger.Warn("feed archival failed", zap.String("key", key), zap.Error(err))
	}
}
