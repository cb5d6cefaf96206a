// Package postgrest implements the remote.Store interface against a hosted
// PostgREST-style relational API.
package postgrest

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
	"sync"
	"time"

	"taskdeck/internal/remote"
)

// APITimeout is the timeout for API calls.
const APITimeout = 10 * time.Second

// Client talks to the hosted relational store over HTTP.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client

	mu     sync.RWMutex
	bearer string
}

// New creates a client for the store rooted at baseURL. anonKey is sent on
// every request; until SetBearer is called it also serves as the bearer.
func New(baseURL, anonKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/rest/v1",
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: APITimeout},
	}
}

// SetBearer swaps the authorization token. Called on session changes so
// row-level security sees the signed-in identity.
func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = token
}

// Select implements remote.Store.
func (c *Client) Select(ctx context.Context, q remote.Query, dest any) error {
	params := url.Values{}
	params.Set("select", selectColumns(q))
	encodeFilters(params, q.Filters)
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			parts[i] = o.Column + "." + dir
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	body, err := c.do(ctx, http.MethodGet, q.Table, params, nil, dest != nil)
	if err != nil {
		return wrapError("select", q.Table, err)
	}
	return decodeInto(body, dest, "select", q.Table)
}

// Insert implements remote.Store.
func (c *Client) Insert(ctx context.Context, table string, rows any, dest any) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return &remote.FetchError{Op: "insert", Table: table, Wrapped: err}
	}
	body, err := c.do(ctx, http.MethodPost, table, nil, payload, dest != nil)
	if err != nil {
		return wrapError("insert", table, err)
	}
	return decodeInto(body, dest, "insert", table)
}

// Update implements remote.Store.
func (c *Client) Update(ctx context.Context, table string, patch map[string]any, filters []remote.Filter, dest any) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return &remote.FetchError{Op: "update", Table: table, Wrapped: err}
	}
	params := url.Values{}
	encodeFilters(params, filters)

	body, err := c.do(ctx, http.MethodPatch, table, params, payload, dest != nil)
	if err != nil {
		return wrapError("update", table, err)
	}
	return decodeInto(body, dest, "update", table)
}

// Delete implements remote.Store.
func (c *Client) Delete(ctx context.Context, table string, filters []remote.Filter) error {
	params := url.Values{}
	encodeFilters(params, filters)

	if _, err := c.do(ctx, http.MethodDelete, table, params, nil, false); err != nil {
		return wrapError("delete", table, err)
	}
	return nil
}

// selectColumns builds the select parameter, including FK expansions:
// "*, state:task_states!state_id(*)".
func selectColumns(q remote.Query) string {
	parts := make([]string, 0, len(q.Columns)+len(q.Joins)+1)
	if len(q.Columns) == 0 {
		parts = append(parts, "*")
	} else {
		parts = append(parts, q.Columns...)
	}
	for _, j := range q.Joins {
		parts = append(parts, fmt.Sprintf("%s:%s!%s(*)", j.Name, j.Table, j.Column))
	}
	return strings.Join(parts, ",")
}

func encodeFilters(params url.Values, filters []remote.Filter) {
	for _, f := range filters {
		switch f.Op {
		case remote.OpIn:
			values, _ := f.Value.([]string)
			params.Set(f.Column, "in.("+strings.Join(values, ",")+")")
		default:
			if f.Value == nil {
				params.Set(f.Column, "is.null")
				continue
			}
			params.Set(f.Column, fmt.Sprintf("eq.%v", f.Value))
		}
	}
}

// apiError is the error body the store returns on failures.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// httpError carries the status code through to wrapError.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("status %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("status %d", e.status)
}

func (c *Client) do(ctx context.Context, method, table string, params url.Values, payload []byte, wantRows bool) ([]byte, error) {
	u := c.baseURL + "/" + table
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	c.mu.RLock()
	bearer := c.bearer
	c.mu.RUnlock()
	if bearer == "" {
		bearer = c.anonKey
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		if wantRows {
			req.Header.Set("Prefer", "return=representation")
		} else {
			req.Header.Set("Prefer", "return=minimal")
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var ae apiError
		if err := json.Unmarshal(body, &ae); err == nil && ae.Message != "" {
			return nil, &httpError{status: resp.StatusCode, message: ae.Message}
		}
		return nil, &httpError{status: resp.StatusCode}
	}

	return body, nil
}

func decodeInto(body []byte, dest any, op, table string) error {
	if dest == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &remote.FetchError{Op: op, Table: table, Wrapped: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}

// wrapError maps HTTP failures onto the remote error taxonomy.
func wrapError(op, table string, err error) error {
	if he, ok := err.(*httpError); ok {
		switch {
		case he.status == http.StatusNotFound || he.status == http.StatusNotAcceptable:
			return &remote.NotFoundError{Table: table, Key: he.message}
		case he.status == http.StatusConflict || he.status == http.StatusUnprocessableEntity:
			return &remote.ValidationError{Table: table, Message: he.Error()}
		}
	}
	if fe, ok := err.(*remote.FetchError); ok {
		return fe
	}
	return &remote.FetchError{Op: op, Table: table, Wrapped: err}
}
