package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidelink-audio/tidelink/internal/resilience"
	"github.com/tidelink-audio/tidelink/pkg/protocol"
)

const (
	restTimeout = 10 * time.Second

	// maxRetries bounds transport/5xx retries; delays are 1s, 2s, 4s.
	maxRetries = 3

	// maxRateLimitRetries separately bounds 429 sleeps so that an endless
	// Retry-After loop cannot livelock a caller.
	maxRateLimitRetries = 5
)

// Rest is a typed client for one worker node's HTTP API. All endpoints
// live under /v4. Rest is safe for concurrent use.
type Rest struct {
	base     string // e.g. "http://host:2333"
	password string
	http     *http.Client
	breaker  *resilience.Breaker

	// sleep is replaced in tests to avoid real backoff delays.
	sleep func(context.Context, time.Duration) error
}

// NewRest creates a REST client for the worker at base (scheme://host:port)
// authenticating with password.
func NewRest(identifier, base, password string) *Rest {
	return &Rest{
		base:     strings.TrimRight(base, "/"),
		password: password,
		http:     &http.Client{},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:      identifier + "/rest",
			IsFailure: breakerFailure,
		}),
		sleep: sleepCtx,
	}
}

// breakerFailure reports whether err says the node itself is unhealthy.
// Caller-side outcomes (404, bad credentials, 4xx request errors) prove
// the endpoint responded and must not trip the breaker.
func breakerFailure(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
		return false
	}
	var serr *StatusError
	if errors.As(err, &serr) && serr.Code < 500 {
		return false
	}
	return true
}

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

// LoadTracks resolves an identifier (a URL or a "<prefix>search:query"
// string) into tracks.
func (r *Rest) LoadTracks(ctx context.Context, identifier string) (*protocol.LoadResponse, error) {
	var out protocol.LoadResponse
	p := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := r.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, fmt.Errorf("node: load tracks: %w", err)
	}
	return &out, nil
}

// UpdatePlayer patches the worker-side player of guildID. When noReplace
// is set, a patch carrying a track does not interrupt one already playing.
func (r *Rest) UpdatePlayer(ctx context.Context, sessionID, guildID string, patch protocol.UpdatePlayer, noReplace bool) (*protocol.PlayerInfo, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	p := fmt.Sprintf("/v4/sessions/%s/players/%s", sessionID, guildID)
	if noReplace {
		p += "?noReplace=true"
	}
	var out protocol.PlayerInfo
	if err := r.do(ctx, http.MethodPatch, p, patch, &out); err != nil {
		return nil, fmt.Errorf("node: update player %s: %w", guildID, err)
	}
	return &out, nil
}

// DestroyPlayer removes the worker-side player of guildID. A 404 means the
// player is already gone and is treated as success.
func (r *Rest) DestroyPlayer(ctx context.Context, sessionID, guildID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	p := fmt.Sprintf("/v4/sessions/%s/players/%s", sessionID, guildID)
	err := r.do(ctx, http.MethodDelete, p, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("node: destroy player %s: %w", guildID, err)
	}
	return nil
}

// Info fetches worker metadata.
func (r *Rest) Info(ctx context.Context) (*protocol.Info, error) {
	var out protocol.Info
	if err := r.do(ctx, http.MethodGet, "/v4/info", nil, &out); err != nil {
		return nil, fmt.Errorf("node: info: %w", err)
	}
	return &out, nil
}

// Stats fetches a load snapshot on demand.
func (r *Rest) Stats(ctx context.Context) (*protocol.Stats, error) {
	var out protocol.Stats
	if err := r.do(ctx, http.MethodGet, "/v4/stats", nil, &out); err != nil {
		return nil, fmt.Errorf("node: stats: %w", err)
	}
	return &out, nil
}

// Version fetches the bare version string. Used as the ping probe.
func (r *Rest) Version(ctx context.Context) (string, error) {
	req, err := r.newRequest(ctx, http.MethodGet, "/version", nil)
	if err != nil {
		return "", err
	}
	res, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("node: version: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", &StatusError{Code: res.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(res.Body, 256))
	if err != nil {
		return "", fmt.Errorf("node: version: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// DecodeTrack resolves an encoded blob back into track info.
func (r *Rest) DecodeTrack(ctx context.Context, encoded string) (*protocol.Track, error) {
	var out protocol.Track
	p := "/v4/decodetrack?encodedTrack=" + url.QueryEscape(encoded)
	if err := r.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, fmt.Errorf("node: decode track: %w", err)
	}
	return &out, nil
}

// DecodeTracks resolves a batch of encoded blobs.
func (r *Rest) DecodeTracks(ctx context.Context, encoded []string) ([]protocol.Track, error) {
	var out []protocol.Track
	if err := r.do(ctx, http.MethodPost, "/v4/decodetracks", encoded, &out); err != nil {
		return nil, fmt.Errorf("node: decode tracks: %w", err)
	}
	return out, nil
}

// SetSponsorBlockCategories configures the SponsorBlock plugin categories
// for a guild's player. Requires the plugin on the worker side.
func (r *Rest) SetSponsorBlockCategories(ctx context.Context, sessionID, guildID string, categories []string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	p := fmt.Sprintf("/v4/sessions/%s/players/%s/sponsorblock/categories", sessionID, guildID)
	if err := r.do(ctx, http.MethodPut, p, categories, nil); err != nil {
		return fmt.Errorf("node: sponsorblock categories: %w", err)
	}
	return nil
}

func (r *Rest) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("node: encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("node: build request: %w", err)
	}
	req.Header.Set("Authorization", r.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do performs one API call with the retry policy: up to maxRetries retries
// on transport errors and 5xx with exponential backoff (1s, 2s, 4s); 429
// honours Retry-After without consuming the retry budget; 401/403 and 404
// are final.
func (r *Rest) do(ctx context.Context, method, path string, body, out any) error {
	return r.breaker.Execute(func() error {
		var lastErr error
		rateLimited := 0

		for attempt := 0; attempt <= maxRetries; {
			callCtx, cancel := context.WithTimeout(ctx, restTimeout)
			retryAfter, final, err := r.once(callCtx, method, path, body, out)
			cancel()
			if err == nil {
				return nil
			}
			if final {
				return err
			}
			lastErr = err

			if retryAfter > 0 {
				rateLimited++
				if rateLimited > maxRateLimitRetries {
					return fmt.Errorf("rate limited too long: %w", err)
				}
				if serr := r.sleep(ctx, retryAfter); serr != nil {
					return serr
				}
				continue
			}

			attempt++
			if attempt > maxRetries {
				break
			}
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			if serr := r.sleep(ctx, backoff); serr != nil {
				return serr
			}
		}
		return lastErr
	})
}

// once performs a single HTTP exchange. It returns a positive retryAfter
// for 429 responses, final=true when the error must not be retried.
func (r *Rest) once(ctx context.Context, method, path string, body, out any) (retryAfter time.Duration, final bool, err error) {
	req, err := r.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, true, err
	}
	res, err := r.http.Do(req)
	if err != nil {
		// Transport failure: retryable unless the parent context is gone.
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return 0, false, err
		}
		return 0, false, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return 0, true, ErrUnauthorized
	case res.StatusCode == http.StatusNotFound:
		return 0, true, ErrNotFound
	case res.StatusCode == http.StatusTooManyRequests:
		after := time.Second
		if v := res.Header.Get("Retry-After"); v != "" {
			if secs, perr := strconv.Atoi(v); perr == nil && secs >= 0 {
				after = time.Duration(secs) * time.Second
			}
		}
		return after, false, fmt.Errorf("node: rate limited")
	case res.StatusCode >= 500:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return 0, false, &StatusError{Code: res.StatusCode, Body: string(b)}
	case res.StatusCode >= 400:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return 0, true, &StatusError{Code: res.StatusCode, Body: string(b)}
	}

	if out == nil {
		return 0, false, nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return 0, true, fmt.Errorf("node: decode response: %w", err)
	}
	return 0, false, nil
}
