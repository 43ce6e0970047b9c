package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Camera endpoint paths exposed by the intercom's HTTP server.
const (
	stillPath  = "/live/jpeg"
	streamPath = "/live/mjpeg"

	stillTimeout = 10 * time.Second

	// maxStillSize bounds a single JPEG snapshot read (8MB).
	maxStillSize = 8 << 20
)

// Logger is the minimal logging interface the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client fetches still images and MJPEG streams from an intercom's
// built-in camera. The camera speaks plain HTTP with Basic Auth on its
// own port, separate from the WebSocket control channel.
//
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	logger   Logger

	httpClient *http.Client
}

// Options configure a camera client.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	Logger   Logger
}

// New creates a camera client for one device.
func New(opts Options) *Client {
	return &Client{
		baseURL:  fmt.Sprintf("http://%s:%d", opts.Host, opts.Port),
		username: opts.Username,
		password: opts.Password,
		logger:   opts.Logger,
		httpClient: &http.Client{
			// No overall timeout: MJPEG streams are long-lived. Still
			// fetches bound themselves with a context deadline.
		},
	}
}

// StillURL returns the snapshot endpoint URL.
func (c *Client) StillURL() string {
	return c.baseURL + stillPath
}

// StreamURL returns the MJPEG stream endpoint URL.
func (c *Client) StreamURL() string {
	return c.baseURL + streamPath
}

// Still fetches a single JPEG snapshot.
//
// Returns:
//   - []byte: JPEG image data
//   - string: Content-Type reported by the camera
//   - error: Wrapped ErrUnauthorized or ErrUnavailable
func (c *Client) Still(ctx context.Context) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, stillTimeout)
	defer cancel()

	resp, err := c.get(ctx, c.StillURL())
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxStillSize))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read snapshot: %w", ErrUnavailable, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	if c.logger != nil {
		c.logger.Debug("camera snapshot fetched", "bytes", len(data))
	}
	return data, contentType, nil
}

// Stream opens the camera's MJPEG stream.
//
// The Content-Type of the upstream response carries the multipart
// boundary, so proxies must forward it verbatim. The caller owns closing
// the returned body; the stream runs until the context is cancelled or
// the camera ends it.
func (c *Client) Stream(ctx context.Context) (io.ReadCloser, string, error) {
	resp, err := c.get(ctx, c.StreamURL())
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// StreamTo proxies the camera's MJPEG stream into w until the context is
// cancelled, the camera closes the stream, or the writer fails.
func (c *Client) StreamTo(ctx context.Context, w io.Writer) (string, error) {
	body, contentType, err := c.Stream(ctx)
	if err != nil {
		return "", err
	}
	defer body.Close()

	_, err = io.Copy(w, body)
	if err != nil && ctx.Err() == nil {
		return contentType, fmt.Errorf("%w: stream interrupted: %w", ErrUnavailable, err)
	}
	return contentType, nil
}

// get performs an authenticated GET and maps failure status codes.
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return resp, nil
}
