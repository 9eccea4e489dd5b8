package hostfunc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caffeineduck/pdksim/memory"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 8 * time.Second
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type HTTPConfig struct {
	// AllowedHosts restricts outgoing requests. Empty allows every host.
	AllowedHosts   []string
	MaxBodySize    int64
	RequestTimeout time.Duration
}

// HTTP is the bridge behind http_request and http_status_code. The status of
// the most recently completed request sits in a single shared cell; a second
// request issued before the first status is read overwrites it.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	arena  *memory.Arena
	logger *zap.Logger

	lastStatus int32
}

func NewHTTP(cfg HTTPConfig, arena *memory.Arena, logger *zap.Logger) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTP{
		cfg:    cfg,
		client: &http.Client{},
		arena:  arena,
		logger: logger,
	}
}

// Request decodes the descriptor at reqOff (and the body at bodyOff when it is
// non-zero), performs the request and returns the offset of a new buffer
// holding the response body.
func (h *HTTP) Request(ctx context.Context, reqOff, bodyOff memory.Offset) (memory.Offset, error) {
	raw, err := h.arena.DecodeString(reqOff)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	desc, err := ParseDescriptor([]byte(raw))
	if err != nil {
		return 0, err
	}

	var body string
	if bodyOff != 0 {
		body, err = h.arena.DecodeString(bodyOff)
		if err != nil {
			return 0, fmt.Errorf("%w: body: %w", ErrMalformedRequest, err)
		}
	}

	h.logger.Debug("http_request",
		zap.String("method", desc.Method),
		zap.String("url", desc.URL),
		zap.Any("header", desc.Header),
		zap.String("body", body))

	resp, err := h.Do(ctx, desc, body)
	if err != nil {
		return 0, err
	}

	h.logger.Debug("http_request result",
		zap.Int("status", resp.Status),
		zap.Int("bytes", len(resp.Body)),
		zap.Bool("truncated", resp.Truncated))

	off, err := h.arena.AllocateAndFill(resp.Body)
	if err != nil {
		return 0, err
	}
	h.lastStatus = int32(resp.Status)
	return off, nil
}

// StatusCode returns the status of the most recently completed request, or 0.
func (h *HTTP) StatusCode() int32 {
	return h.lastStatus
}

// ParseDescriptor parses and validates a request descriptor. The method
// defaults to GET and is upper-cased.
func ParseDescriptor(data []byte) (HTTPRequestDescriptor, error) {
	var desc HTTPRequestDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	desc.Method = strings.ToUpper(desc.Method)
	if desc.Method == "" {
		desc.Method = http.MethodGet
	}

	if err := validate.Struct(desc); err != nil {
		return desc, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	parsed, err := url.Parse(desc.URL)
	if err != nil {
		return desc, fmt.Errorf("%w: invalid url: %w", ErrMalformedRequest, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return desc, fmt.Errorf("%w: scheme must be http or https", ErrMalformedRequest)
	}

	return desc, nil
}

// Do performs the network part of a request under the configured timeout.
func (h *HTTP) Do(ctx context.Context, desc HTTPRequestDescriptor, body string) (HTTPResponse, error) {
	parsed, err := url.Parse(desc.URL)
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("%w: invalid url: %w", ErrMalformedRequest, err)
	}
	if host := parsed.Hostname(); !h.isHostAllowed(host) {
		return HTTPResponse{}, fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	defer cancel()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, desc.Method, desc.URL, reqBody)
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	for k, v := range desc.Header {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return HTTPResponse{}, h.requestError(parent, ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize+1))
	if err != nil {
		return HTTPResponse{}, h.requestError(parent, ctx, err)
	}

	truncated := false
	if int64(len(respBody)) > h.cfg.MaxBodySize {
		respBody = respBody[:h.cfg.MaxBodySize]
		truncated = true
	}

	return HTTPResponse{
		Status:    resp.StatusCode,
		Body:      respBody,
		Truncated: truncated,
	}, nil
}

// requestError names why a request failed. parent is the caller's context and
// ctx the one bounded by RequestTimeout.
func (h *HTTP) requestError(parent, ctx context.Context, err error) error {
	if cause := parent.Err(); cause != nil {
		return fmt.Errorf("request aborted by caller: %w", cause)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v", ErrTimeout, h.cfg.RequestTimeout)
	}
	return fmt.Errorf("request failed: %w", err)
}

func (h *HTTP) isHostAllowed(host string) bool {
	if len(h.cfg.AllowedHosts) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
