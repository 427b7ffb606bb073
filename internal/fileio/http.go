package fileio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// DriverHTTP names the read-only HTTP file system.
const DriverHTTP = types.DriverHTTP

const defaultHTTPTimeout = 30 * time.Second

// HTTP reads files relative to a base URL. It is read-only: writes and
// directory creation fail with types.ErrReadOnly. Directories are assumed to
// exist since plain HTTP servers have no portable listing.
type HTTP struct {
	base   *url.URL
	client *http.Client
}

// NewHTTP returns a file system reading from baseURL. A nil client uses one
// with a 30s timeout.
func NewHTTP(baseURL string, client *http.Client) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("http file system: invalid base url %q", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTP{base: u, client: client}, nil
}

func (*HTTP) Name() string { return DriverHTTP }

func (h *HTTP) url(p string) string {
	ref := &url.URL{Path: cleanKey(p)}
	return h.base.ResolveReference(ref).String()
}

func (h *HTTP) do(ctx context.Context, method, p string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.url(p), nil)
	if err != nil {
		return nil, err
	}
	return h.client.Do(req)
}

func (h *HTTP) ReadAllText(ctx context.Context, p string) (string, error) {
	const op = "read"
	if err := checkContext(ctx, DriverHTTP, op, p); err != nil {
		return "", err
	}
	resp, err := h.do(ctx, http.MethodGet, p)
	if err != nil {
		return "", ioError(DriverHTTP, op, p, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", notFound(DriverHTTP, op, p)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", ioError(DriverHTTP, op, p, fmt.Errorf("unexpected status %s", resp.Status))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ioError(DriverHTTP, op, p, err)
	}
	return string(b), nil
}

func (h *HTTP) ReadAllLines(ctx context.Context, p string) ([]string, error) {
	text, err := h.ReadAllText(ctx, p)
	if err != nil {
		return nil, err
	}
	return types.SplitLines(text), nil
}

func (h *HTTP) FileExists(ctx context.Context, p string) (bool, error) {
	const op = "stat"
	if err := checkContext(ctx, DriverHTTP, op, p); err != nil {
		return false, err
	}
	resp, err := h.do(ctx, http.MethodHead, p)
	if err != nil {
		return false, ioError(DriverHTTP, op, p, err)
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return true, nil
	default:
		return false, ioError(DriverHTTP, op, p, fmt.Errorf("unexpected status %s", resp.Status))
	}
}

func (h *HTTP) DirectoryExists(ctx context.Context, p string) (bool, error) {
	if err := checkContext(ctx, DriverHTTP, "stat", p); err != nil {
		return false, err
	}
	return true, nil
}

func (h *HTTP) WriteAllText(ctx context.Context, p, _ string) error {
	if err := checkContext(ctx, DriverHTTP, "write", p); err != nil {
		return err
	}
	return readOnly(DriverHTTP, "write", p)
}

func (h *HTTP) CreateDirectory(ctx context.Context, p string) error {
	if err := checkContext(ctx, DriverHTTP, "mkdir", p); err != nil {
		return err
	}
	return readOnly(DriverHTTP, "mkdir", p)
}
