// Package api is the HTTP client for the SecureVote service. It covers the
// auth, MFA, and voting surfaces consumed by the client state machines and
// converts wire DTOs to domain types at this boundary.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTimeout = 15 * time.Second

// Client calls the SecureVote service over HTTP/JSON. The zero value is not
// usable; construct with New.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// New returns a Client for the service at baseURL. timeout bounds each call;
// zero means the default of 15s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("securevote/client/api"),
	}
}

// do performs one request and decodes a 2xx JSON body into out (out may be
// nil). Non-2xx responses are returned as *Error with the server detail; the
// caller classifies them per endpoint. Transport failures are returned as-is.
func (c *Client) do(ctx context.Context, op, method, path, token, contentType string, body []byte, out any) error {
	ctx, span := c.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("securevote api: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp)
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("securevote api: decode response: %w", err)
	}
	return nil
}

// decodeError reads the error body. The service reports failures as
// {"detail": "..."}; detail is occasionally a structured value (validation
// errors), in which case the raw JSON is kept as the message.
func decodeError(resp *http.Response) *Error {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	detail := ""
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			detail = s
		} else {
			detail = string(body.Detail)
		}
	}
	return &Error{Status: resp.StatusCode, Detail: detail}
}

// withKind attaches a sentinel kind to err when err is an *Error. Non-*Error
// values (transport failures) pass through unchanged.
func withKind(err error, kind error) error {
	if apiErr, ok := err.(*Error); ok {
		apiErr.Kind = kind
		return apiErr
	}
	return err
}
