// Package api is the REST transport of the core. It speaks the backend's
// envelope dialects, normalizes list responses, and maps HTTP failures
// onto the client error taxonomy. It owns no domain rules: a call either
// resolves with data or rejects with an error, and cancellation is the
// caller's context's concern.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
	appctx "github.com/jofan-cah/logistik-core/internal/core/context"
	"github.com/jofan-cah/logistik-core/internal/core/id"
)

const tracerName = "github.com/jofan-cah/logistik-core/internal/api"

// Config holds client configuration.
type Config struct {
	BaseURL string

	// TokenSource supplies bearer tokens. Optional; nil means anonymous.
	TokenSource TokenSource

	// HTTPClient overrides the underlying client. Optional.
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil.
	Timeout time.Duration

	UserAgent string
}

// Client is the HTTP client for the back-office API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	tokens    TokenSource
	userAgent string
	tracer    trace.Tracer
}

// New creates a Client from configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.NewValidation("api base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, apperror.NewValidation("api base URL is invalid").WithCause(err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "logistik-core/1.0"
	}

	return &Client{
		baseURL:   base,
		http:      httpClient,
		tokens:    cfg.TokenSource,
		userAgent: userAgent,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// do performs one request/response cycle: marshal body, attach auth and
// request id, send, decompress, decode the envelope, map errors. When out
// is non-nil the envelope's data field is decoded into it.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) (*envelope, error) {
	ctx, span := c.tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	env, status, err := c.roundTrip(ctx, method, path, query, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	if err := checkEnvelope(env, status); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("decode %s %s response: %w", method, path, err))
		}
	}
	return env, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any) (*envelope, int, error) {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, apperror.NewInternal(fmt.Errorf("encode %s %s request: %w", method, path, err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, 0, apperror.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	requestID := appctx.GetRequestID(ctx)
	if requestID == "" {
		requestID = id.New().String()
	}
	req.Header.Set("X-Request-ID", requestID)

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, apperror.NewNetwork(err)
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return nil, resp.StatusCode, apperror.NewNetwork(err)
	}

	env := &envelope{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, env); err != nil {
			// Some delete endpoints answer with an empty or non-envelope
			// body; only the status code matters then.
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return &envelope{}, resp.StatusCode, nil
			}
			return nil, resp.StatusCode, statusError(resp.StatusCode, "")
		}
	}
	return env, resp.StatusCode, nil
}

// readBody drains the response, transparently gunzipping when the server
// compressed it.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			if err == io.EOF {
				// Gzip-marked but empty body, seen behind some proxies.
				return nil, nil
			}
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

// checkEnvelope maps status codes and success:false envelopes onto the
// error taxonomy.
func checkEnvelope(env *envelope, status int) error {
	if status >= 200 && status < 300 {
		if env.Success != nil && !*env.Success {
			return env.domainError(status)
		}
		return nil
	}
	if env.Code != "" || env.Message != "" {
		appErr := env.domainError(status)
		if env.Code == "" {
			appErr.Code = codeForStatus(status)
		}
		return appErr
	}
	return statusError(status, env.Message)
}

func statusError(status int, message string) *apperror.AppError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &apperror.AppError{
		Code:       codeForStatus(status),
		Message:    message,
		HTTPStatus: status,
	}
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return apperror.CodeNotFound
	case status == http.StatusUnauthorized:
		return apperror.CodeUnauthorized
	case status == http.StatusForbidden:
		return apperror.CodeForbidden
	case status == http.StatusBadRequest:
		return apperror.CodeValidation
	case status == http.StatusConflict:
		return apperror.CodeDuplicate
	case status >= 400 && status < 500:
		return apperror.CodeBusinessRule
	default:
		return apperror.CodeNetwork
	}
}

// listParams merges entity filters with pagination parameters.
func listParams(filters url.Values, page, limit int) url.Values {
	v := url.Values{}
	for key, vals := range filters {
		v[key] = vals
	}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	return v
}
