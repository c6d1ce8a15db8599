// Package client is a small HTTP client for the bandscore API plus a batch
// runner used by bandctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/bandscore/internal/domain/types"
)

const defaultTimeout = 30 * time.Second

// Client talks to one bandscore instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New returns a client for baseURL, e.g. "http://localhost:9080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitRequest is one recording to assess.
type SubmitRequest struct {
	Audio    []byte
	Filename string
	Prompt   string
	Key      string
	Detail   types.DetailLevel
	Wait     bool
}

// SubmitResult holds whichever body the service answered with: an accepted
// ticket (202) or a finished assessment (200, wait only).
type SubmitResult struct {
	Accepted *types.SubmitResponse
	View     *types.AssessmentView
}

// ID returns the assessment ID from either response shape.
func (r SubmitResult) ID() string {
	if r.View != nil {
		return r.View.ID
	}
	if r.Accepted != nil {
		return r.Accepted.ID
	}
	return ""
}

// Health reports nil when /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Submit uploads a recording.
func (c *Client) Submit(ctx context.Context, in SubmitRequest) (SubmitResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", in.Filename)
	if err != nil {
		return SubmitResult{}, err
	}
	if _, err := fw.Write(in.Audio); err != nil {
		return SubmitResult{}, err
	}
	fields := map[string]string{
		"prompt": in.Prompt,
		"detail": string(in.Detail),
		"wait":   strconv.FormatBool(in.Wait),
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return SubmitResult{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return SubmitResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/assessments", &buf)
	if err != nil {
		return SubmitResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if in.Key != "" {
		req.Header.Set("Idempotency-Key", in.Key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return SubmitResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var v types.AssessmentView
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return SubmitResult{}, fmt.Errorf("decode assessment: %w", err)
		}
		return SubmitResult{View: &v}, nil
	case http.StatusAccepted:
		var a types.SubmitResponse
		if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
			return SubmitResult{}, fmt.Errorf("decode submit response: %w", err)
		}
		return SubmitResult{Accepted: &a}, nil
	}
	return SubmitResult{}, decodeError(resp)
}

// Get fetches one assessment at the given detail level.
func (c *Client) Get(ctx context.Context, id string, detail types.DetailLevel) (types.AssessmentView, error) {
	q := url.Values{}
	if detail != "" {
		q.Set("detail", string(detail))
	}
	var v types.AssessmentView
	err := c.getJSON(ctx, "/v1/assessments/"+url.PathEscape(id), q, &v)
	return v, err
}

// List fetches the most recent assessments.
func (c *Client) List(ctx context.Context, limit int) (types.ListResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out types.ListResponse
	err := c.getJSON(ctx, "/v1/assessments", q, &out)
	return out, err
}

// Poll re-fetches id every interval until it reaches a terminal status or
// ctx ends.
func (c *Client) Poll(ctx context.Context, id string, detail types.DetailLevel, interval time.Duration) (types.AssessmentView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		v, err := c.Get(ctx, id, detail)
		if err != nil {
			return v, err
		}
		if v.Status.Terminal() {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	return apiErr
}
