package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kong-mcp/bridge/pkg/access"
	"github.com/kong-mcp/bridge/pkg/config"
)

// introspectionResponse is the RFC 7662 token introspection response
// shape. Only the fields this bridge acts on are modeled; everything
// else collapses into Raw for arbitrary claim_name access-control
// evaluation.
type introspectionResponse struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope"`
	ClientID string `json:"client_id"`
	Sub      string `json:"sub"`
	Aud      any    `json:"aud"`
	Exp      int64  `json:"exp"`
	Iat      int64  `json:"iat"`
	Nbf      int64  `json:"nbf"`

	Raw map[string]any `json:"-"`
}

type introspectionCacheEntry struct {
	claims    *Claims
	expiresAt time.Time
}

// IntrospectionClient validates bearer tokens via RFC 7662 token
// introspection, the alternative to local JWT verification for opaque
// tokens. Positive responses
// are cached briefly (default 30s) so that a burst of calls against the
// same token doesn't introspect on every request; the `active` flag is
// authoritative and never cached when false.
type IntrospectionClient struct {
	cfg    *config.OAuthConfig
	client *http.Client

	mu    sync.Mutex
	cache map[string]introspectionCacheEntry
}

// NewIntrospectionClient builds a client for cfg.IntrospectionEndpoint.
func NewIntrospectionClient(cfg *config.OAuthConfig, client *http.Client) *IntrospectionClient {
	return &IntrospectionClient{
		cfg:    cfg,
		client: client,
		cache:  make(map[string]introspectionCacheEntry),
	}
}

// Validate introspects tokenString against the configured endpoint and
// applies the same audience/scope checks the JWT path applies.
func (ic *IntrospectionClient) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	if claims, ok := ic.cached(tokenString); ok {
		return claims, nil
	}

	resp, err := ic.introspect(ctx, tokenString)
	if err != nil {
		return nil, authError(ReasonIntrospectionFailed, "")
	}
	if !resp.Active {
		return nil, authError(ReasonTokenInactive, "")
	}

	claims := &Claims{
		Raw:      access.ClaimSet(resp.Raw),
		Subject:  resp.Sub,
		Scope:    resp.Scope,
		ClientID: resp.ClientID,
	}
	if resp.Exp > 0 {
		t := time.Unix(resp.Exp, 0)
		claims.Expiry = &t
	}
	switch aud := resp.Aud.(type) {
	case string:
		claims.Audience = []string{aud}
	case []any:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				claims.Audience = append(claims.Audience, s)
			}
		}
	}

	if ic.cfg.Audience != "" {
		matched := false
		for _, aud := range claims.Audience {
			if aud == ic.cfg.Audience {
				matched = true
				break
			}
		}
		if !matched {
			return nil, authError(ReasonAudienceMismatch, ic.cfg.Audience)
		}
	}

	if len(ic.cfg.RequiredScopes) > 0 {
		have := make(map[string]bool)
		for _, s := range strings.Fields(claims.Scope) {
			have[s] = true
		}
		for _, required := range ic.cfg.RequiredScopes {
			if !have[required] {
				return nil, authError(ReasonMissingScope, required)
			}
		}
	}

	ic.store(tokenString, claims)
	return claims, nil
}

func (ic *IntrospectionClient) cached(token string) (*Claims, bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	entry, ok := ic.cache[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.claims, true
}

func (ic *IntrospectionClient) store(token string, claims *Claims) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	ttl := time.Duration(config.DefaultIntrospectionTTLSeconds) * time.Second
	ic.cache[token] = introspectionCacheEntry{claims: claims, expiresAt: time.Now().Add(ttl)}
}

func (ic *IntrospectionClient) introspect(ctx context.Context, token string) (*introspectionResponse, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ic.cfg.IntrospectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if ic.cfg.IntrospectionClientID != "" {
		req.SetBasicAuth(ic.cfg.IntrospectionClientID, ic.cfg.IntrospectionSecret)
	}

	resp, err := ic.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: resp.StatusCode}
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	out := &introspectionResponse{Raw: raw}
	if v, ok := raw["active"].(bool); ok {
		out.Active = v
	}
	if v, ok := raw["scope"].(string); ok {
		out.Scope = v
	}
	if v, ok := raw["client_id"].(string); ok {
		out.ClientID = v
	}
	if v, ok := raw["sub"].(string); ok {
		out.Sub = v
	}
	if v, ok := raw["aud"]; ok {
		out.Aud = v
	}
	if v, ok := raw["exp"].(float64); ok {
		out.Exp = int64(v)
	}
	return out, nil
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return "introspection endpoint returned status " + strconv.Itoa(e.status)
}
