// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// Test provider defaults.
const (
	TestClientID     = "test-client-id"
	TestAuthCode     = "test-auth-code"
	TestReplySubject = "auth0|alice"
)

// TestProvider is a local TLS server which behaves like a provider tenant:
// discovery, /authorize with PKCE, /oauth/token, /userinfo, /v2/logout and
// optionally an oidc end_session_endpoint. It makes writing tests of the
// full redirect flow much easier.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string
	jwks       *jose.JSONWebKeySet
	privKey    *ecdsa.PrivateKey
	keyID      string

	mu                 sync.Mutex
	clientID           string
	clientSecret       string
	expectedAuthCode   string
	authErrorCode      string
	nonceOverride      string
	replySubject       string
	replyUserinfo      map[string]interface{}
	customClaims       map[string]interface{}
	tokenTTL           time.Duration
	omitIDToken        bool
	disableUserInfo    bool
	enableEndSession   bool
	pending            map[string]testPendingAuth
	accessTokens       map[string]bool
	lastAuthorizeQuery url.Values
	lastLogoutQuery    url.Values

	t *testing.T
}

type testPendingAuth struct {
	nonce       string
	challenge   string
	redirectURI string
}

// StartTestProvider creates a disposable TestProvider, which is stopped by
// the test's cleanup.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		clientID:         TestClientID,
		expectedAuthCode: TestAuthCode,
		replySubject:     TestReplySubject,
		replyUserinfo: map[string]interface{}{
			"nickname":       "alice",
			"email":          "alice@example.com",
			"email_verified": true,
			"name":           "Alice Doe-Smith",
		},
		tokenTTL:     time.Hour,
		pending:      map[string]testPendingAuth{},
		accessTokens: map[string]bool{},
		t:            t,
	}
	p.privKey = TestGenerateKey(t)
	p.keyID = "test-key"
	p.jwks = &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       p.privKey.Public(),
				KeyID:     p.keyID,
				Algorithm: string(ES256),
				Use:       "sig",
			},
		},
	}

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the base URL of the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Domain returns the test provider's tenant domain (host:port).
func (p *TestProvider) Domain() string { return strings.TrimPrefix(p.Addr(), "https://") }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http client which trusts the test provider's CA and
// keeps cookies, like a browser following the login redirects.
func (p *TestProvider) HTTPClient() *http.Client {
	p.t.Helper()
	certPool := x509.NewCertPool()
	require.True(p.t, certPool.AppendCertsFromPEM([]byte(p.caCert)))
	jar, err := cookiejar.New(nil)
	require.NoError(p.t, err)
	return &http.Client{
		Jar: jar,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: certPool, MinVersion: tls.VersionTLS12},
		},
	}
}

// SetClientCreds configures the client credentials the provider accepts.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code returned from /authorize and
// accepted by /oauth/token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetAuthError forces /authorize to answer with an error response carrying
// code, ie: "access_denied". An empty code restores normal behavior.
func (p *TestProvider) SetAuthError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authErrorCode = code
}

// SetNonceOverride forces the nonce embedded in issued id_tokens.
func (p *TestProvider) SetNonceOverride(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonceOverride = nonce
}

// SetCustomClaims sets additional claims for issued id_tokens.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetUserInfoReply sets the claims returned by /userinfo.
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// SetTokenTTL sets the lifetime of issued tokens.
func (p *TestProvider) SetTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenTTL = d
}

// OmitIDTokens forces /oauth/token to not return an id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// DisableUserInfo makes /userinfo return 404 and omits it from discovery.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// EnableEndSession advertises an oidc end_session_endpoint in discovery.
func (p *TestProvider) EnableEndSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enableEndSession = true
}

// LastAuthorizeQuery returns the query of the latest /authorize request.
func (p *TestProvider) LastAuthorizeQuery() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuthorizeQuery
}

// LastLogoutQuery returns the query of the latest logout request.
func (p *TestProvider) LastLogoutQuery() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLogoutQuery
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) redirectWith(w http.ResponseWriter, req *http.Request, to string, params url.Values) {
	u, err := url.Parse(to)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	params := url.Values{
		"state": {qv.Get("state")},
		"error": {errorCode},
	}
	if errorMessage != "" {
		params.Set("error_description", errorMessage)
	}
	p.redirectWith(w, req, qv.Get("redirect_uri"), params)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	_ = p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer           string   `json:"issuer"`
			AuthEndpoint     string   `json:"authorization_endpoint"`
			TokenEndpoint    string   `json:"token_endpoint"`
			JWKSURI          string   `json:"jwks_uri"`
			UserinfoEndpoint string   `json:"userinfo_endpoint,omitempty"`
			EndSession       string   `json:"end_session_endpoint,omitempty"`
			Algs             []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:           p.Addr() + "/",
			AuthEndpoint:     p.Addr() + "/authorize",
			TokenEndpoint:    p.Addr() + "/oauth/token",
			JWKSURI:          p.Addr() + "/.well-known/jwks.json",
			UserinfoEndpoint: p.Addr() + "/userinfo",
			Algs:             []string{string(ES256)},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}
		if p.enableEndSession {
			reply.EndSession = p.Addr() + "/oidc/logout"
		}
		_ = p.writeJSON(w, &reply)

	case "/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		p.lastAuthorizeQuery = qv

		switch {
		case qv.Get("redirect_uri") == "":
			w.WriteHeader(http.StatusBadRequest)
			return
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "unknown client")
			return
		case !strings.Contains(" "+qv.Get("scope")+" ", " openid "):
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		case qv.Get("state") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		case qv.Get("code_challenge") == "" || qv.Get("code_challenge_method") != "S256":
			p.writeAuthErrorResponse(w, req, "invalid_request", "S256 code challenge required")
			return
		case p.authErrorCode != "":
			p.writeAuthErrorResponse(w, req, p.authErrorCode, "forced by test provider")
			return
		}
		p.pending[p.expectedAuthCode] = testPendingAuth{
			nonce:       qv.Get("nonce"),
			challenge:   qv.Get("code_challenge"),
			redirectURI: qv.Get("redirect_uri"),
		}
		p.redirectWith(w, req, qv.Get("redirect_uri"), url.Values{
			"state": {qv.Get("state")},
			"code":  {p.expectedAuthCode},
		})

	case "/.well-known/jwks.json":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "/oauth/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		clientID, clientSecret, ok := req.BasicAuth()
		if !ok {
			clientID, clientSecret = req.FormValue("client_id"), req.FormValue("client_secret")
		}
		code := req.FormValue("code")
		pending, found := p.pending[code]
		switch {
		case req.FormValue("grant_type") != "authorization_code":
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case clientID != p.clientID || clientSecret != p.clientSecret:
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
			return
		case !found || code != p.expectedAuthCode:
			p.writeTokenErrorResponse(w, http.StatusForbidden, "invalid_grant", "unexpected auth code")
			return
		case req.FormValue("redirect_uri") != pending.redirectURI:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri does not match")
			return
		case s256(req.FormValue("code_verifier")) != pending.challenge:
			p.writeTokenErrorResponse(w, http.StatusForbidden, "invalid_grant", "code_verifier does not match challenge")
			return
		}
		delete(p.pending, code)

		nonce := pending.nonce
		if p.nonceOverride != "" {
			nonce = p.nonceOverride
		}
		now := time.Now()
		stdClaims := jwt.Claims{
			Subject:   p.replySubject,
			Issuer:    p.Addr() + "/",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			Expiry:    jwt.NewNumericDate(now.Add(p.tokenTTL)),
			Audience:  jwt.Audience{p.clientID},
		}
		privateClaims := map[string]interface{}{
			"nonce":    nonce,
			"nickname": p.replyUserinfo["nickname"],
			"email":    p.replyUserinfo["email"],
		}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}
		accessToken, err := NewID("at")
		require.NoError(p.t, err)
		p.accessTokens[accessToken] = true

		reply := struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int64  `json:"expires_in"`
			IDToken     string `json:"id_token,omitempty"`
		}{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   int64(p.tokenTTL.Seconds()),
		}
		if !p.omitIDToken {
			reply.IDToken = TestSignJWT(p.t, p.privKey, p.keyID, stdClaims, privateClaims)
		}
		_ = p.writeJSON(w, &reply)

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.accessTokens[strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{"sub": p.replySubject}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		_ = p.writeJSON(w, reply)

	case "/v2/logout":
		p.lastLogoutQuery = req.URL.Query()
		if returnTo := req.URL.Query().Get("returnTo"); returnTo != "" {
			http.Redirect(w, req, returnTo, http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case "/oidc/logout":
		if !p.enableEndSession {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		p.lastLogoutQuery = req.URL.Query()
		if to := req.URL.Query().Get("post_logout_redirect_uri"); to != "" {
			http.Redirect(w, req, to, http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
