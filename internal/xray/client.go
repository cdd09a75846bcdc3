// Package xray implements the Xray Cloud API client.
// It owns the bearer token lifecycle (authenticate, hold, re-acquire) and
// executes the GetTests GraphQL query against the fixed Xray Cloud endpoints,
// optionally through an outbound HTTP proxy.
package xray

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"xraysync/connector/internal/errors"
	"xraysync/connector/internal/httperrors"
	"xraysync/connector/internal/logging"
)

// Fixed Xray Cloud endpoints.
const (
	DefaultAuthEndpoint    = "https://xray.cloud.getxray.app/api/v2/authenticate"
	DefaultGraphQLEndpoint = "https://xray.cloud.getxray.app/api/v2/graphql"
)

// authAttempts is the total number of authentication attempts, including the first.
const authAttempts = 4

// retryStatus lists HTTP status codes that indicate a temporary condition
// worth retrying during authentication.
var retryStatus = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
}

// VariablesMode selects how optional GraphQL variables are encoded.
type VariablesMode string

const (
	// VariablesOmit leaves folder and jql out of the variables when empty.
	VariablesOmit VariablesMode = "omit"
	// VariablesNull always sends folder and passes jql explicitly as null
	// when empty, matching servers that require the full variable set.
	VariablesNull VariablesMode = "null"
)

// ResultShape selects how much of the query response the client returns.
type ResultShape string

const (
	// ShapeCount extracts only the integer test total.
	ShapeCount ResultShape = "count"
	// ShapeFull returns the raw data object for the caller to serialize.
	ShapeFull ResultShape = "full"
)

// Options configures a Client. The zero value uses the fixed Xray Cloud
// endpoints, a 60 second request timeout, direct connection, second-scale
// retry backoff, omit-style variables and count-only results.
type Options struct {
	AuthEndpoint    string
	GraphQLEndpoint string
	// ProxyURL routes every outbound request through an HTTP proxy when set.
	ProxyURL string
	// Timeout bounds each individual request.
	Timeout time.Duration
	// BackoffUnit scales the retry backoff. Attempt i waits (15 + 15*i)
	// units before the next try. Tests shrink this to milliseconds.
	BackoffUnit time.Duration
	Variables   VariablesMode
	Shape       ResultShape
}

// Client is the Xray Cloud API client. It holds at most one bearer token at
// a time; a successful authentication discards any prior token. Client is
// not safe for concurrent use; the connector is strictly sequential.
type Client struct {
	clientID     string
	clientSecret string
	authEndpoint string
	gqlEndpoint  string
	httpClient   *http.Client
	backoffUnit  time.Duration
	variables    VariablesMode
	shape        ResultShape

	token string
}

// New creates an Xray API client. It does not authenticate; the first query
// triggers authentication, or call Authenticate explicitly to fail fast.
func New(clientID, clientSecret string, opts Options) (*Client, error) {
	if opts.AuthEndpoint == "" {
		opts.AuthEndpoint = DefaultAuthEndpoint
	}
	if opts.GraphQLEndpoint == "" {
		opts.GraphQLEndpoint = DefaultGraphQLEndpoint
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.BackoffUnit == 0 {
		opts.BackoffUnit = time.Second
	}
	if opts.Variables == "" {
		opts.Variables = VariablesOmit
	}
	if opts.Shape == "" {
		opts.Shape = ShapeCount
	}

	hc := &http.Client{Timeout: opts.Timeout}
	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, errors.Wrap(errors.ConfigInvalid, "invalid proxy URL", err)
		}
		hc.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	}

	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		authEndpoint: opts.AuthEndpoint,
		gqlEndpoint:  opts.GraphQLEndpoint,
		httpClient:   hc,
		backoffUnit:  opts.BackoffUnit,
		variables:    opts.Variables,
		shape:        opts.Shape,
	}, nil
}

// Authenticate obtains a bearer token from the authentication endpoint.
//
// Up to 4 total attempts are made. A 429 or 503 response, or a transport
// failure, waits 15 + 15*i backoff units and retries; any other non-200
// status fails immediately. The token is the response body with surrounding
// quotes stripped. A success replaces any previously held token.
func (c *Client) Authenticate(ctx context.Context) error {
	logging.L().Info("authenticating with the Xray Cloud API",
		logging.Args("client_id", logging.MaskTail(c.clientID, 5)))

	payload, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return errors.Wrap(errors.Unexpected, "encode auth payload", err)
	}

	var lastErr error
	for i := 0; i < authAttempts; i++ {
		wait := time.Duration(15+15*i) * c.backoffUnit

		resp, err := c.postJSON(ctx, c.authEndpoint, payload, "")
		if err != nil {
			lastErr = err
			if i+1 < authAttempts && (httperrors.IsTransient(err) || isTemporary(err)) {
				logging.L().Warn("authentication request failed, retrying",
					logging.Args("error", logging.Mask(err.Error()), "wait", wait, "attempt", i+1, "attempts", authAttempts))
				if err := sleepCtx(ctx, wait); err != nil {
					return errors.Wrap(errors.AuthFailed, "authentication cancelled", err)
				}
				continue
			}
			return errors.Wrap(errors.AuthFailed, "authentication request failed after retries", lastErr)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if i+1 < authAttempts {
				if err := sleepCtx(ctx, wait); err != nil {
					return errors.Wrap(errors.AuthFailed, "authentication cancelled", err)
				}
				continue
			}
			return errors.Wrap(errors.AuthFailed, "read authentication response", lastErr)
		}

		if retryStatus[resp.StatusCode] {
			lastErr = fmt.Errorf("authentication failed with status %d", resp.StatusCode)
			if i+1 < authAttempts {
				logging.L().Warn("authentication got a temporary status, retrying",
					logging.Args("status", resp.StatusCode, "wait", wait, "attempt", i+1, "attempts", authAttempts))
				if err := sleepCtx(ctx, wait); err != nil {
					return errors.Wrap(errors.AuthFailed, "authentication cancelled", err)
				}
				continue
			}
			return errors.Wrap(errors.AuthFailed,
				fmt.Sprintf("failed to obtain bearer token after %d attempts", authAttempts), lastErr)
		}

		if resp.StatusCode != http.StatusOK {
			return errors.New(errors.AuthFailed,
				fmt.Sprintf("authentication failed with status %d: %s", resp.StatusCode, snippet(body)))
		}

		c.token = strings.Trim(strings.TrimSpace(string(body)), `"`)
		logging.L().Info("Xray Cloud API authentication successful")
		return nil
	}

	return errors.Wrap(errors.AuthFailed,
		fmt.Sprintf("failed to obtain bearer token after %d attempts", authAttempts), lastErr)
}

// QueryTests runs the GetTests GraphQL query. When no token is held it
// authenticates first. A 401 on the query triggers one re-authentication
// and one retry; the query itself is never retried beyond that.
func (c *Client) QueryTests(ctx context.Context, p QueryParams) (*Result, error) {
	if c.token == "" {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	logging.L().Debug("executing GraphQL query",
		logging.Args("project", p.ProjectID, "folder", p.FolderPath, "jql", p.JQL))

	res, unauthorized, err := c.queryOnce(ctx, p)
	if unauthorized {
		// Token likely expired server-side: re-acquire once and retry once.
		logging.L().Warn("query unauthorized, re-authenticating")
		c.token = ""
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		res, _, err = c.queryOnce(ctx, p)
	}
	return res, err
}

// queryOnce performs a single GraphQL request. The middle return value
// reports a 401 so the caller can decide to re-authenticate.
func (c *Client) queryOnce(ctx context.Context, p QueryParams) (*Result, bool, error) {
	payload, err := json.Marshal(graphQLRequest{
		Query:     c.queryDocument(),
		Variables: c.buildVariables(p),
	})
	if err != nil {
		return nil, false, errors.Wrap(errors.Unexpected, "encode GraphQL payload", err)
	}

	resp, err := c.postJSON(ctx, c.gqlEndpoint, payload, c.token)
	if err != nil {
		return nil, false, errors.Wrap(errors.QueryFailed, "GraphQL request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, errors.Wrap(errors.QueryFailed, "read GraphQL response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, true, errors.New(errors.QueryFailed, "GraphQL request unauthorized")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, errors.New(errors.QueryFailed,
			fmt.Sprintf("GraphQL request failed with status %d: %s", resp.StatusCode, snippet(body)))
	}

	var gr graphQLResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, false, errors.Wrap(errors.QueryFailed,
			fmt.Sprintf("failed to parse JSON response, body: %s", snippet(body)), err)
	}
	if len(gr.Errors) > 0 {
		detail, _ := json.Marshal(gr.Errors)
		return nil, false, errors.New(errors.QueryFailed, "GraphQL query errors: "+string(detail))
	}

	return c.extractResult(gr.Data), false, nil
}

// extractResult normalizes the data object per the configured result shape.
// In count mode a missing or non-numeric total is coerced to 0 with a
// warning rather than failing the row.
func (c *Client) extractResult(data json.RawMessage) *Result {
	res := &Result{Data: data}
	if c.shape == ShapeFull {
		return res
	}

	var envelope struct {
		GetTests struct {
			Total json.RawMessage `json:"total"`
		} `json:"getTests"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.GetTests.Total) == 0 {
		logging.L().Warn("missing test total in GraphQL response, returning 0")
		return res
	}

	var total int
	if err := json.Unmarshal(envelope.GetTests.Total, &total); err != nil {
		// Some servers return the total as a quoted string.
		var s string
		if err := json.Unmarshal(envelope.GetTests.Total, &s); err == nil {
			if _, err := fmt.Sscanf(s, "%d", &total); err == nil {
				res.Total = total
				return res
			}
		}
		logging.L().Warn("invalid test total in GraphQL response, returning 0",
			logging.Args("total", string(envelope.GetTests.Total)))
		return res
	}
	res.Total = total
	return res
}

// buildVariables assembles the GraphQL variables per the configured
// encoding. Omit mode leaves empty optionals out entirely; null mode always
// sends folder and passes jql as an explicit null.
func (c *Client) buildVariables(p QueryParams) map[string]any {
	vars := map[string]any{"projectId": strings.TrimSpace(p.ProjectID)}

	folder := strings.TrimSpace(p.FolderPath)
	jql := strings.TrimSpace(p.JQL)

	switch c.variables {
	case VariablesNull:
		vars["folder"] = folderInput{Path: folder, IncludeDescendants: true}
		if jql != "" {
			vars["jql"] = jql
		} else {
			vars["jql"] = nil
		}
	default:
		if folder != "" {
			vars["folder"] = folderInput{Path: folder, IncludeDescendants: true}
		}
		if jql != "" {
			vars["jql"] = jql
		}
	}
	return vars
}

// queryDocument returns the GraphQL document for the configured result shape.
func (c *Client) queryDocument() string {
	if c.shape == ShapeFull {
		return getTestsFullQuery
	}
	return getTestsCountQuery
}

// postJSON sends one POST with a JSON body and optional bearer token.
func (c *Client) postJSON(ctx context.Context, endpoint string, body []byte, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient.Do(req)
}

// isTemporary treats any transport-level error as retryable; only status
// handling distinguishes permanent failures during authentication.
func isTemporary(err error) bool {
	var uerr *url.Error
	return stderrors.As(err, &uerr)
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// snippet returns up to 500 characters of a response body for diagnostics.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
