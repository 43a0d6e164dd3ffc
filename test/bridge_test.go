package test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kong-mcp/bridge/pkg/config"
)

const statusOnlySpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Kong Admin API", "version": "1.0.0"},
  "paths": {
    "/status": {
      "get": {"summary": "Get Kong status"}
    }
  }
}`

const pluginSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Kong Admin API", "version": "1.0.0"},
  "paths": {
    "/plugins/{id}": {
      "get": {
        "operationId": "getPlugin",
        "summary": "Retrieve a plugin",
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}},
          {"name": "verbose", "in": "query", "schema": {"type": "string"}}
        ]
      }
    }
  }
}`

const gatewaySpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Gateway API", "version": "1.0.0"},
  "paths": {
    "/services": {"get": {"summary": "List services"}},
    "/routes": {"get": {"summary": "List routes"}},
    "/consumers": {"get": {"summary": "List consumers"}},
    "/upstreams": {"get": {"summary": "List upstreams"}},
    "/certificates": {"get": {"summary": "List certificates"}},
    "/snis": {"get": {"summary": "List SNIs"}}
  }
}`

const adminSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Kong Admin API", "version": "1.0.0"},
  "paths": {
    "/status": {"get": {"summary": "Get Kong status"}},
    "/config": {"get": {"summary": "Get config"}},
    "/plugins": {"get": {"summary": "List plugins"}},
    "/plugins/{id}": {
      "get": {
        "summary": "Retrieve a plugin",
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}
        ]
      }
    }
  }
}`

// filteredConfig is the two-route shape used by the visibility and
// call-time access checks: one open route producing six tools and one
// claim-guarded route producing four.
func filteredConfig(jwksURL, upstreamURL string) *config.ServerConfig {
	return &config.ServerConfig{
		OAuth: &config.OAuthConfig{
			Enabled:              true,
			AuthorizationServers: []string{jwksURL},
		},
		Routes: []config.RouteToolConfig{
			{
				RouteID:          "route-a",
				RouteName:        "gateway",
				UpstreamBasePath: upstreamURL,
				APISpecification: gatewaySpec,
			},
			{
				RouteID:          "route-b",
				RouteName:        "kong-admin",
				ToolPrefix:       "kong_admin",
				UpstreamBasePath: upstreamURL,
				APISpecification: adminSpec,
				AccessControl: &config.AccessControl{
					DefaultRequirements: []config.Requirement{{
						ClaimName:   "permissions",
						ClaimValues: []string{"kong:read", "kong:write"},
						MatchType:   config.MatchAny,
					}},
				},
			},
		},
	}
}

var _ = Describe("MCP bridge", func() {
	Describe("tools/list without auth", func() {
		It("returns the synthesised tool with an empty object schema", func() {
			bridge, err := newBridge(&config.ServerConfig{
				Routes: []config.RouteToolConfig{{
					RouteID:          "route-1",
					RouteName:        "admin",
					ToolPrefix:       "admin_api",
					UpstreamBasePath: "http://127.0.0.1:1",
					APISpecification: statusOnlySpec,
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			defer bridge.Close()

			reply, err := postRPC(bridge.URL, "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.status).To(Equal(http.StatusOK))

			tools := reply.body["result"].(map[string]any)["tools"].([]any)
			Expect(tools).To(HaveLen(1))

			tool := tools[0].(map[string]any)
			Expect(tool["name"]).To(Equal("admin_api_get_status"))
			Expect(tool["description"]).To(Equal("Get Kong status"))

			inputSchema := tool["inputSchema"].(map[string]any)
			Expect(inputSchema["type"]).To(Equal("object"))
			Expect(inputSchema["properties"]).To(Equal(map[string]any{}))
			Expect(inputSchema["required"]).To(Equal([]any{}))
		})
	})

	Describe("path and query binding", func() {
		It("substitutes path parameters and appends query parameters", func() {
			var gotPath, gotQuery string
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotQuery = r.URL.RawQuery
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id": "abc", "name": "rate-limiting"}`))
			}))
			defer upstream.Close()

			bridge, err := newBridge(&config.ServerConfig{
				Routes: []config.RouteToolConfig{{
					RouteID:          "route-1",
					RouteName:        "kong-admin",
					ToolPrefix:       "kong_admin",
					UpstreamBasePath: upstream.URL,
					APISpecification: pluginSpec,
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			defer bridge.Close()

			reply, err := postRPC(bridge.URL, "",
				`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"kong_admin_get_plugins_id","arguments":{"id":"abc","verbose":"true"}}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.status).To(Equal(http.StatusOK))

			Expect(gotPath).To(Equal("/plugins/abc"))
			Expect(gotQuery).To(Equal("verbose=true"))

			result := reply.body["result"].(map[string]any)
			content := result["content"].([]any)
			Expect(content).To(HaveLen(1))
			entry := content[0].(map[string]any)
			Expect(entry["type"]).To(Equal("text"))
			Expect(entry["text"]).To(MatchJSON(`{"id":"abc","name":"rate-limiting"}`))
		})
	})

	Describe("identity-filtered tool listing", func() {
		var auth *authServer
		var bridge *httptest.Server

		BeforeEach(func() {
			var err error
			auth, err = newAuthServer()
			Expect(err).NotTo(HaveOccurred())

			bridge, err = newBridge(filteredConfig(auth.jwksURL(), "http://127.0.0.1:1"))
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			bridge.Close()
			auth.close()
		})

		It("hides guarded tools from callers without the claim", func() {
			token, err := auth.signToken(tokenSpec{claims: map[string]any{"permissions": []string{"read:gateway"}}})
			Expect(err).NotTo(HaveOccurred())

			reply, err := postRPC(bridge.URL, token, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.status).To(Equal(http.StatusOK))

			names := reply.toolNames()
			Expect(names).To(HaveLen(6))
			for _, name := range names {
				Expect(name).To(HavePrefix("gateway_"))
			}
		})

		It("shows all tools to callers holding a matching claim value", func() {
			token, err := auth.signToken(tokenSpec{claims: map[string]any{"permissions": []string{"kong:read", "read:gateway"}}})
			Expect(err).NotTo(HaveOccurred())

			reply, err := postRPC(bridge.URL, token, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(reply.toolNames()).To(HaveLen(10))
		})

		It("rejects guarded tool calls with an indistinguishable not-found error", func() {
			token, err := auth.signToken(tokenSpec{claims: map[string]any{"permissions": []string{"read:gateway"}}})
			Expect(err).NotTo(HaveOccurred())

			reply, err := postRPC(bridge.URL, token,
				`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"kong_admin_get_status","arguments":{}}}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(reply.status).To(Equal(http.StatusNotFound))
			errObj := reply.errorObject()
			Expect(errObj["code"]).To(Equal(float64(-32001)))
			Expect(errObj["message"]).To(Equal("Tool not found or access denied"))
		})

		It("keeps tools/list and tools/call in agreement for one identity", func() {
			token, err := auth.signToken(tokenSpec{claims: map[string]any{"permissions": []string{"read:gateway"}}})
			Expect(err).NotTo(HaveOccurred())

			reply, err := postRPC(bridge.URL, token, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
			Expect(err).NotTo(HaveOccurred())

			for _, name := range reply.toolNames() {
				callReply, err := postRPC(bridge.URL, token,
					fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":%q,"arguments":{}}}`, name))
				Expect(err).NotTo(HaveOccurred())
				if errObj := callReply.errorObject(); errObj != nil {
					Expect(errObj["code"]).NotTo(Equal(float64(-32001)),
						"listed tool %s must not be rejected as missing or forbidden", name)
				}
			}
		})
	})

	Describe("authentication failure shape", func() {
		It("returns a 401 JSON-RPC error with the resource metadata challenge", func() {
			auth, err := newAuthServer()
			Expect(err).NotTo(HaveOccurred())
			defer auth.close()

			bridge, err := newBridge(filteredConfig(auth.jwksURL(), "http://127.0.0.1:1"))
			Expect(err).NotTo(HaveOccurred())
			defer bridge.Close()

			reply, err := postRPC(bridge.URL, "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(reply.status).To(Equal(http.StatusUnauthorized))
			Expect(reply.body["jsonrpc"]).To(Equal("2.0"))
			Expect(reply.body["id"]).To(Equal(float64(1)))

			errObj := reply.errorObject()
			Expect(errObj["code"]).To(Equal(float64(-32001)))
			Expect(errObj["message"]).To(Equal("Authentication failed"))
			Expect(errObj["data"].(map[string]any)["detail"]).To(Equal("Missing authorization token"))

			host := strings.TrimPrefix(bridge.URL, "http://")
			expected := fmt.Sprintf(`Bearer resource_metadata="http://%s/.well-known/oauth-protected-resource"`, host)
			Expect(reply.headers.Get("WWW-Authenticate")).To(Equal(expected))
		})
	})

	Describe("tools/call parameter validation", func() {
		It("rejects a call without a tool name", func() {
			bridge, err := newBridge(&config.ServerConfig{
				Routes: []config.RouteToolConfig{{
					RouteID:          "route-1",
					RouteName:        "admin",
					UpstreamBasePath: "http://127.0.0.1:1",
					APISpecification: statusOnlySpec,
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			defer bridge.Close()

			reply, err := postRPC(bridge.URL, "", `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"arguments":{}}}`)
			Expect(err).NotTo(HaveOccurred())

			errObj := reply.errorObject()
			Expect(errObj["code"]).To(Equal(float64(-32602)))
			Expect(errObj["data"].(map[string]any)["detail"]).To(Equal("Missing tool name"))
		})
	})

	Describe("token validation failures", func() {
		var auth *authServer
		var bridge *httptest.Server

		BeforeEach(func() {
			var err error
			auth, err = newAuthServer()
			Expect(err).NotTo(HaveOccurred())

			cfg := &config.ServerConfig{
				OAuth: &config.OAuthConfig{
					Enabled:              true,
					AuthorizationServers: []string{auth.jwksURL()},
					Audience:             "kong-api",
					RequiredScopes:       []string{"mcp:use"},
				},
				Routes: []config.RouteToolConfig{{
					RouteID:          "route-1",
					RouteName:        "admin",
					UpstreamBasePath: "http://127.0.0.1:1",
					APISpecification: statusOnlySpec,
				}},
			}
			bridge, err = newBridge(cfg)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			bridge.Close()
			auth.close()
		})

		expectAuthFailed := func(token string) {
			reply, err := postRPC(bridge.URL, token, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.status).To(Equal(http.StatusUnauthorized))
			Expect(reply.errorObject()["code"]).To(Equal(float64(-32001)))
		}

		It("accepts a well-formed token", func() {
			token, err := auth.signToken(tokenSpec{audience: "kong-api", scope: "mcp:use"})
			Expect(err).NotTo(HaveOccurred())

			reply, err := postRPC(bridge.URL, token, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.status).To(Equal(http.StatusOK))
			Expect(reply.toolNames()).To(HaveLen(1))
		})

		It("rejects a token signed by the wrong key", func() {
			wrongKey, err := foreignKey(testKeyID)
			Expect(err).NotTo(HaveOccurred())

			token, err := auth.signToken(tokenSpec{audience: "kong-api", scope: "mcp:use", signWith: wrongKey})
			Expect(err).NotTo(HaveOccurred())
			expectAuthFailed(token)
		})

		It("rejects an expired token", func() {
			token, err := auth.signToken(tokenSpec{audience: "kong-api", scope: "mcp:use", expiry: time.Now().Add(-time.Minute)})
			Expect(err).NotTo(HaveOccurred())
			expectAuthFailed(token)
		})

		It("rejects a token with the wrong audience", func() {
			token, err := auth.signToken(tokenSpec{audience: "other-api", scope: "mcp:use"})
			Expect(err).NotTo(HaveOccurred())
			expectAuthFailed(token)
		})

		It("rejects a token missing a required scope", func() {
			token, err := auth.signToken(tokenSpec{audience: "kong-api", scope: "profile email"})
			Expect(err).NotTo(HaveOccurred())
			expectAuthFailed(token)
		})

		It("rejects a token with an unknown kid even after a refresh", func() {
			strangerKey, err := foreignKey("key-nobody-published")
			Expect(err).NotTo(HaveOccurred())

			token, err := auth.signToken(tokenSpec{audience: "kong-api", scope: "mcp:use", signWith: strangerKey})
			Expect(err).NotTo(HaveOccurred())
			expectAuthFailed(token)
		})

		It("rejects garbage in place of a token", func() {
			expectAuthFailed("not-a-jwt-at-all")
		})
	})

	Describe("upstream failures", func() {
		It("wraps upstream error statuses as isError results", func() {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("no healthy upstream"))
			}))
			defer upstream.Close()

			bridge, err := newBridge(&config.ServerConfig{
				Routes: []config.RouteToolConfig{{
					RouteID:          "route-1",
					RouteName:        "admin",
					ToolPrefix:       "admin_api",
					UpstreamBasePath: upstream.URL,
					APISpecification: statusOnlySpec,
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			defer bridge.Close()

			reply, err := postRPC(bridge.URL, "",
				`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"admin_api_get_status","arguments":{}}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.status).To(Equal(http.StatusOK))

			result := reply.body["result"].(map[string]any)
			Expect(result["isError"]).To(Equal(true))
			entry := result["content"].([]any)[0].(map[string]any)
			Expect(entry["text"]).To(Equal("HTTP 502 Error: no healthy upstream"))
		})

		It("maps transport failures to the execution error code", func() {
			bridge, err := newBridge(&config.ServerConfig{
				Routes: []config.RouteToolConfig{{
					RouteID:          "route-1",
					RouteName:        "admin",
					ToolPrefix:       "admin_api",
					UpstreamBasePath: "http://127.0.0.1:1",
					APISpecification: statusOnlySpec,
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			defer bridge.Close()

			reply, err := postRPC(bridge.URL, "",
				`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"admin_api_get_status","arguments":{}}}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(reply.status).To(Equal(http.StatusInternalServerError))
			errObj := reply.errorObject()
			Expect(errObj["code"]).To(Equal(float64(-32003)))
			Expect(errObj["message"]).To(Equal("Tool execution failed"))
			Expect(errObj["data"].(map[string]any)["detail"]).NotTo(BeEmpty())
		})
	})

	Describe("protected resource metadata", func() {
		It("advertises the configured authorization servers", func() {
			auth, err := newAuthServer()
			Expect(err).NotTo(HaveOccurred())
			defer auth.close()

			bridge, err := newBridge(filteredConfig(auth.jwksURL(), "http://127.0.0.1:1"))
			Expect(err).NotTo(HaveOccurred())
			defer bridge.Close()

			resp, err := http.Get(bridge.URL + "/.well-known/oauth-protected-resource")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var metadata map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&metadata)).To(Succeed())
			Expect(metadata["authorization_servers"]).To(ContainElement(auth.jwksURL()))
		})
	})
})
