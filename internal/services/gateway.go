package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/novaplayer/api/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL  = "https://api.spotify.com/v1"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	// DefaultRetryBudget bounds 429-triggered retries for one logical call.
	DefaultRetryBudget = 3

	// defaultRetryAfter applies when a 429 carries no Retry-After header.
	defaultRetryAfter = 2 * time.Second

	// retryMargin is added on top of the upstream-advised wait.
	retryMargin = time.Second
)

// Request describes one logical outbound call to the Spotify API.
//
// Path is resolved against the API base unless it is already absolute.
// Body is JSON-encoded unless RawBody is set (used for JPEG cover uploads).
type Request struct {
	UserID      string
	Method      string
	Path        string
	Params      url.Values
	Body        any
	RawBody     []byte
	ContentType string
	Headers     map[string]string
	RetryBudget int
}

// NewRequest creates a Request with the default retry budget.
func NewRequest(userID, method, path string) *Request {
	return &Request{
		UserID:      userID,
		Method:      method,
		Path:        path,
		Params:      url.Values{},
		RetryBudget: DefaultRetryBudget,
	}
}

// WithParam adds a query parameter and returns the request for chaining.
func (r *Request) WithParam(key, value string) *Request {
	r.Params.Set(key, value)
	return r
}

// WithBudget overrides the 429 retry budget. Polling reads pass 0 so a
// throttle fails fast instead of blocking the caller.
func (r *Request) WithBudget(budget int) *Request {
	r.RetryBudget = budget
	return r
}

// WithBody attaches a JSON body.
func (r *Request) WithBody(body any) *Request {
	r.Body = body
	return r
}

// WithRawBody attaches a raw body with an explicit content type.
func (r *Request) WithRawBody(body []byte, contentType string) *Request {
	r.RawBody = body
	r.ContentType = contentType
	return r
}

// Response is the decoded-agnostic result of a gateway call.
type Response struct {
	StatusCode int
	Body       []byte
}

// JSON unmarshals the response body into v. A 204 or empty body leaves v untouched.
func (r *Response) JSON(v any) error {
	if r.StatusCode == http.StatusNoContent || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode spotify response: %w", err)
	}
	return nil
}

// refreshResult carries the outcome of one token refresh shared by every
// caller that was waiting on it.
type refreshResult struct {
	accessToken string
	err         error
}

type refreshCall struct {
	done   chan struct{}
	result refreshResult
}

// Gateway performs authenticated calls to the Spotify API on behalf of a
// user, transparently refreshing expired tokens and backing off on 429.
type Gateway struct {
	store      CredentialStore
	cipher     *shared.Cipher
	httpClient *http.Client
	logger     *log.Logger

	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string

	// limiter paces outbound calls ahead of upstream throttling.
	limiter *rate.Limiter

	// sleep and jitter are seams for tests; production uses real timers
	// and [0,1s) random jitter.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration

	refreshMu sync.Mutex
	refreshes map[string]*refreshCall
}

// GatewayOpts configures a [Gateway].
type GatewayOpts struct {
	Store        CredentialStore
	Cipher       *shared.Cipher
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Logger       *log.Logger
	BaseURL      string // defaults to the public Spotify API base
	TokenURL     string // defaults to the Spotify accounts token endpoint
	RPS          float64
}

// NewGateway creates a [Gateway].
func NewGateway(opts GatewayOpts) *Gateway {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}

	var limiter *rate.Limiter
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}

	return &Gateway{
		store:        opts.Store,
		cipher:       opts.Cipher,
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		baseURL:      opts.BaseURL,
		tokenURL:     opts.TokenURL,
		limiter:      limiter,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(time.Second)))
		},
		refreshes: make(map[string]*refreshCall),
	}
}

// Do performs the request and returns the raw response.
//
// Fails with [shared.ErrNotConnected] when the user has no Spotify access
// token, [shared.ErrSessionExpired] when refresh fails or a refreshed token
// is still rejected, [shared.ErrRateLimited] when the retry budget is
// exhausted, and [shared.ErrUpstream] for any other upstream error.
func (g *Gateway) Do(ctx context.Context, req *Request) (*Response, error) {
	user, err := g.store.GetByID(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNotConnected, err)
	}
	if !user.Connected() {
		return nil, shared.ErrNotConnected
	}

	token := *user.SpotifyAccessToken
	budget := req.RetryBudget
	refreshed := false

	for {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, body, err := g.issue(ctx, req, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return &Response{StatusCode: resp.StatusCode, Body: body}, nil

		case resp.StatusCode == http.StatusUnauthorized && !refreshed:
			// Refresh is orthogonal to the 429 budget: the re-issued
			// request keeps whatever budget remains.
			fresh, rerr := g.refreshToken(ctx, req.UserID)
			if rerr != nil {
				return nil, rerr
			}
			token = fresh
			refreshed = true

		case resp.StatusCode == http.StatusUnauthorized:
			return nil, shared.ErrSessionExpired

		case resp.StatusCode == http.StatusTooManyRequests && budget > 0:
			wait := retryAfter(resp) + retryMargin + g.jitter()
			g.logger.Warn("rate limited by spotify", "user", req.UserID, "path", req.Path, "wait", wait, "budget", budget)
			if err := g.sleep(ctx, wait); err != nil {
				return nil, err
			}
			budget--

		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s %s", shared.ErrRateLimited, req.Method, req.Path)

		default:
			return nil, fmt.Errorf("%w: status %d: %s", shared.ErrUpstream, resp.StatusCode, truncate(body, 256))
		}
	}
}

// issue builds and executes a single HTTP request with the given token.
func (g *Gateway) issue(ctx context.Context, req *Request, token string) (*http.Response, []byte, error) {
	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = g.baseURL + target
	}
	if len(req.Params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Params.Encode()
	}

	var reader io.Reader
	contentType := "application/json"
	switch {
	case req.RawBody != nil:
		reader = bytes.NewReader(req.RawBody)
		if req.ContentType != "" {
			contentType = req.ContentType
		}
	case req.Body != nil:
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+token)
	if reader != nil {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp, body, nil
}

// Refresh forces a token refresh for the user and returns the new access
// token, for the explicit refresh endpoint the frontend player calls.
func (g *Gateway) Refresh(ctx context.Context, userID string) (string, error) {
	return g.refreshToken(ctx, userID)
}

// refreshToken exchanges the stored refresh token for a fresh access token.
//
// Concurrent 401s for the same user share a single in-flight refresh; the
// first caller performs the exchange and everyone else waits on its result,
// so a rotating upstream never sees competing refresh calls.
func (g *Gateway) refreshToken(ctx context.Context, userID string) (string, error) {
	g.refreshMu.Lock()
	if call, ok := g.refreshes[userID]; ok {
		g.refreshMu.Unlock()
		select {
		case <-call.done:
			return call.result.accessToken, call.result.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	g.refreshes[userID] = call
	g.refreshMu.Unlock()

	accessToken, err := g.doRefresh(ctx, userID)
	call.result = refreshResult{accessToken: accessToken, err: err}
	close(call.done)

	g.refreshMu.Lock()
	delete(g.refreshes, userID)
	g.refreshMu.Unlock()

	return accessToken, err
}

// tokenResponse is the accounts-endpoint payload. The refresh token is only
// present when the upstream rotates it.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (g *Gateway) doRefresh(ctx context.Context, userID string) (string, error) {
	user, err := g.store.GetByID(userID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrNotConnected, err)
	}
	if user.SpotifyRefreshToken == nil || *user.SpotifyRefreshToken == "" {
		return "", shared.ErrNotConnected
	}

	refreshToken, err := g.cipher.Decrypt(*user.SpotifyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSessionExpired, err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSessionExpired, err)
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSessionExpired, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Warn("token refresh rejected", "user", userID, "status", resp.StatusCode)
		return "", fmt.Errorf("%w: refresh status %d", shared.ErrSessionExpired, resp.StatusCode)
	}

	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil || tokens.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed token response", shared.ErrSessionExpired)
	}

	var encryptedRefresh *string
	if tokens.RefreshToken != "" {
		encrypted, err := g.cipher.Encrypt(tokens.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("%w: %v", shared.ErrSessionExpired, err)
		}
		encryptedRefresh = &encrypted
	}

	if err := g.store.UpdateSpotifyTokens(userID, tokens.AccessToken, encryptedRefresh); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrSessionExpired, err)
	}

	g.logger.Debug("refreshed spotify token", "user", userID, "rotated", encryptedRefresh != nil)
	return tokens.AccessToken, nil
}

// retryAfter reads the upstream-advised wait from a 429 response.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

func truncate(body []byte, limit int) string {
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
