package test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"

	"github.com/kong-mcp/bridge/pkg/config"
	"github.com/kong-mcp/bridge/pkg/runtime"
)

// authServer is an in-test authorization server: it holds an RSA key
// pair and publishes the public half as a JWKS document over HTTP.
type authServer struct {
	privateKey *rsa.PrivateKey
	signingKey jwk.Key
	keySet     jwk.Set
	httpServer *httptest.Server
}

const testKeyID = "test-key-1"

func newAuthServer() (*authServer, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	signingKey, err := jwk.Import(privateKey)
	if err != nil {
		return nil, err
	}
	if err := signingKey.Set(jwk.KeyIDKey, testKeyID); err != nil {
		return nil, err
	}
	if err := signingKey.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, err
	}

	publicKey, err := signingKey.PublicKey()
	if err != nil {
		return nil, err
	}

	keySet := jwk.NewSet()
	if err := keySet.AddKey(publicKey); err != nil {
		return nil, err
	}

	s := &authServer{
		privateKey: privateKey,
		signingKey: signingKey,
		keySet:     keySet,
	}

	s.httpServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, err := json.Marshal(s.keySet)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf)
	}))

	return s, nil
}

func (s *authServer) close() {
	s.httpServer.Close()
}

// jwksURL returns the URL the bridge should be configured with. The path
// segment makes the URL recognizable as a direct JWKS reference, so no
// OIDC discovery round-trip happens in tests.
func (s *authServer) jwksURL() string {
	return s.httpServer.URL + "/jwks"
}

type tokenSpec struct {
	audience string
	scope    string
	expiry   time.Time
	claims   map[string]any

	// signWith overrides the signing key, for wrong-signature tests.
	signWith jwk.Key
}

// signToken mints an RSA-signed JWT for the given spec.
func (s *authServer) signToken(spec tokenSpec) (string, error) {
	builder := jwt.NewBuilder().
		Issuer(s.httpServer.URL).
		Subject("test-user").
		IssuedAt(time.Now())

	if spec.expiry.IsZero() {
		builder = builder.Expiration(time.Now().Add(time.Hour))
	} else {
		builder = builder.Expiration(spec.expiry)
	}
	if spec.audience != "" {
		builder = builder.Audience([]string{spec.audience})
	}
	if spec.scope != "" {
		builder = builder.Claim("scope", spec.scope)
	}
	for name, value := range spec.claims {
		builder = builder.Claim(name, value)
	}

	token, err := builder.Build()
	if err != nil {
		return "", err
	}

	signingKey := s.signingKey
	if spec.signWith != nil {
		signingKey = spec.signWith
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), signingKey))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// foreignKey produces a signing key with the given kid but a fresh RSA
// key pair, so its signatures never verify against the JWKS document.
func foreignKey(kid string) (jwk.Key, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	key, err := jwk.Import(privateKey)
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, err
	}
	return key, nil
}

// newBridge loads cfg into a fresh bridge server and exposes it over an
// httptest server.
func newBridge(cfg *config.ServerConfig) (*httptest.Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	server := runtime.NewServer(zap.NewNop())
	if _, err := server.Load(cfg); err != nil {
		return nil, err
	}

	return httptest.NewServer(server.Handler()), nil
}

type rpcReply struct {
	status  int
	headers http.Header
	body    map[string]any
}

// postRPC sends a JSON-RPC request to the bridge, optionally with a
// bearer token.
func postRPC(bridgeURL, token, payload string) (*rpcReply, error) {
	req, err := http.NewRequest(http.MethodPost, bridgeURL+"/mcp", bytes.NewReader([]byte(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	reply := &rpcReply{status: resp.StatusCode, headers: resp.Header}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &reply.body); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

func (r *rpcReply) errorObject() map[string]any {
	if r.body == nil {
		return nil
	}
	errObj, _ := r.body["error"].(map[string]any)
	return errObj
}

func (r *rpcReply) toolNames() []string {
	result, _ := r.body["result"].(map[string]any)
	tools, _ := result["tools"].([]any)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	return names
}
