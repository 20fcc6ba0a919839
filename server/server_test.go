// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timetracker/authbridge/bridge"
	"github.com/timetracker/authbridge/idp"
	"github.com/timetracker/authbridge/session"
)

var testModule = []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

func testAssetRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "package_bg.wasm"), testModule, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "package.js"), []byte("export default async function init() {}"), 0o644))
	return root
}

func testConfig(t *testing.T, tp *idp.TestProvider) *Config {
	t.Helper()
	c := NewConfig(tp.Domain(), idp.TestClientID)
	c.ProviderCA = tp.CACert()
	c.SigningAlgs = []idp.Alg{idp.ES256}
	c.AssetRoot = testAssetRoot(t)
	c.Address = "127.0.0.1:0"
	return c
}

func testServer(t *testing.T, c *Config, opt ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(c, opt...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(s.Bridge().Close)
	return s, ts
}

// testBrowser returns a client which keeps cookies, trusts the provider and
// doesn't follow redirects, so each leg of the flow can be checked.
func testBrowser(tp *idp.TestProvider) *http.Client {
	b := tp.HTTPClient()
	b.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return b
}

type testResponse struct {
	status   int
	header   http.Header
	body     string
	location string
}

func testGet(t *testing.T, b *http.Client, rawURL string, header ...string) testResponse {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := b.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return testResponse{
		status:   resp.StatusCode,
		header:   resp.Header,
		body:     string(body),
		location: resp.Header.Get("Location"),
	}
}

// testLogin walks the browser through a login and returns the callback URL
// the provider redirected it to.
func testLogin(t *testing.T, b *http.Client, ts *httptest.Server, route string) string {
	t.Helper()
	require := require.New(t)
	resp := testGet(t, b, ts.URL+route)
	require.Equal(http.StatusFound, resp.status)
	resp = testGet(t, b, resp.location)
	require.Equal(http.StatusFound, resp.status)
	require.True(strings.HasPrefix(resp.location, ts.URL), resp.location)
	return resp.location
}

func TestServer_LoginFlow(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := idp.StartTestProvider(t)
	_, ts := testServer(t, testConfig(t, tp))
	b := testBrowser(tp)

	resp := testGet(t, b, ts.URL+"/")
	require.Equal(http.StatusOK, resp.status)
	assert.Contains(resp.body, `href="/auth/login"`)
	assert.Contains(resp.body, `href="/auth/signup"`)
	u, err := url.Parse(ts.URL)
	require.NoError(err)
	require.Len(b.Jar.Cookies(u), 1)
	assert.Equal(session.CookieName, b.Jar.Cookies(u)[0].Name)

	resp = testGet(t, b, ts.URL+"/auth/user")
	require.Equal(http.StatusOK, resp.status)
	assert.Equal("null", strings.TrimSpace(resp.body))

	resp = testGet(t, b, ts.URL+"/auth/token")
	assert.Equal(http.StatusUnauthorized, resp.status)

	resp = testGet(t, b, ts.URL+"/auth/login", "Accept-Language", "de-CH, fr;q=0.8")
	require.Equal(http.StatusFound, resp.status)
	require.True(strings.HasPrefix(resp.location, tp.Addr()+"/authorize?"), resp.location)
	authURL, err := url.Parse(resp.location)
	require.NoError(err)
	assert.Equal(ts.URL, authURL.Query().Get("redirect_uri"))
	assert.Empty(authURL.Query().Get("screen_hint"))
	assert.Equal("de-CH fr", authURL.Query().Get("ui_locales"))

	resp = testGet(t, b, resp.location)
	require.Equal(http.StatusFound, resp.status)
	callback := resp.location

	resp = testGet(t, b, callback)
	require.Equal(http.StatusSeeOther, resp.status, resp.body)
	assert.Equal("/", resp.location)

	resp = testGet(t, b, ts.URL+"/")
	require.Equal(http.StatusOK, resp.status)
	assert.Contains(resp.body, "Alice Doe-Smith")
	assert.Contains(resp.body, `href="/auth/logout"`)
	assert.Contains(resp.body, idp.TestReplySubject)

	resp = testGet(t, b, ts.URL+"/auth/user")
	require.Equal(http.StatusOK, resp.status)
	var user idp.UserProfile
	require.NoError(json.Unmarshal([]byte(resp.body), &user))
	assert.Equal(idp.TestReplySubject, user.Subject)
	assert.Equal("alice@example.com", user.Email)

	resp = testGet(t, b, ts.URL+"/auth/token")
	require.Equal(http.StatusOK, resp.status)
	var tk tokenResponse
	require.NoError(json.Unmarshal([]byte(resp.body), &tk))
	assert.NotEmpty(tk.AccessToken)
	assert.Equal("Bearer", tk.TokenType)
	assert.True(tk.Expiry.After(time.Now()))

	// a replayed callback is refused
	resp = testGet(t, b, callback)
	assert.Equal(http.StatusBadRequest, resp.status)

	resp = testGet(t, b, ts.URL+"/auth/logout")
	require.Equal(http.StatusFound, resp.status)
	require.True(strings.HasPrefix(resp.location, tp.Addr()+"/v2/logout?"), resp.location)
	logoutURL, err := url.Parse(resp.location)
	require.NoError(err)
	assert.Equal(ts.URL, logoutURL.Query().Get("returnTo"))
	assert.Equal(idp.TestClientID, logoutURL.Query().Get("client_id"))

	resp = testGet(t, b, ts.URL+"/auth/user")
	assert.Equal("null", strings.TrimSpace(resp.body))
}

func TestServer_SignUp(t *testing.T) {
	t.Parallel()
	tp := idp.StartTestProvider(t)
	_, ts := testServer(t, testConfig(t, tp))
	b := testBrowser(tp)

	require.Equal(t, http.StatusOK, testGet(t, b, ts.URL+"/").status)
	resp := testGet(t, b, ts.URL+"/auth/signup")
	require.Equal(t, http.StatusFound, resp.status)
	authURL, err := url.Parse(resp.location)
	require.NoError(t, err)
	assert.Equal(t, idp.ScreenHintSignup, authURL.Query().Get("screen_hint"))
}

func TestServer_ConsentDenied(t *testing.T) {
	t.Parallel()
	tp := idp.StartTestProvider(t)
	tp.SetAuthError("access_denied")
	_, ts := testServer(t, testConfig(t, tp))
	b := testBrowser(tp)

	require.Equal(t, http.StatusOK, testGet(t, b, ts.URL+"/").status)
	callback := testLogin(t, b, ts, "/auth/login")
	resp := testGet(t, b, callback)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Contains(t, resp.body, "Sign in was cancelled.")
	assert.Contains(t, resp.body, `href="/auth/login"`)
}

func TestServer_NotInitialized(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	unreachable := func(context.Context, string, string) (bridge.IdentityClient, error) {
		return nil, fmt.Errorf("%w: %w", idp.ErrDiscoveryFailed, &url.Error{Op: "Get", URL: "https://tenant/", Err: errors.New("connection refused")})
	}
	c := NewConfig("tenant.eu.auth0.com", "client-id")
	c.AssetRoot = testAssetRoot(t)
	_, ts := testServer(t, c, WithClientFactory(unreachable))
	b := ts.Client()
	b.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	for _, route := range []string{"/auth/login", "/auth/signup", "/auth/logout", "/auth/token"} {
		resp := testGet(t, b, ts.URL+route)
		assert.Equal(http.StatusServiceUnavailable, resp.status, route)
		assert.Contains(resp.body, `"kind":"not initialized"`, route)
	}

	resp := testGet(t, b, ts.URL+"/")
	assert.Equal(http.StatusBadGateway, resp.status)
	assert.Contains(resp.body, "The sign in service is unavailable")

	resp = testGet(t, b, ts.URL+"/auth/user")
	assert.Equal(http.StatusBadGateway, resp.status)
	assert.Contains(resp.body, `"kind":"network"`)
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	tp := idp.StartTestProvider(t)
	s, ts := testServer(t, testConfig(t, tp))

	resp := testGet(t, ts.Client(), ts.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)
	assert.Contains(t, resp.body, `"module":"loading"`)
	resp = testGet(t, ts.Client(), ts.URL+"/pkg/package_bg.wasm")
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)

	require.NoError(t, s.Assets().Load(context.Background()))
	resp = testGet(t, ts.Client(), ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, `"module":"ok"`)
	assert.Contains(t, resp.body, `"auth":"not initialized"`)

	resp = testGet(t, ts.Client(), ts.URL+"/pkg/package_bg.wasm")
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "application/wasm", resp.header.Get("Content-Type"))
	assert.Equal(t, string(testModule), resp.body)
}

func TestServer_HealthLoadFailed(t *testing.T) {
	t.Parallel()
	c := NewConfig("tenant.eu.auth0.com", "client-id")
	c.AssetRoot = t.TempDir()
	s, ts := testServer(t, c)
	require.Error(t, s.Assets().Load(context.Background()))

	resp := testGet(t, ts.Client(), ts.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)
	assert.Contains(t, resp.body, `"module":"failed"`)
	assert.NotContains(t, resp.body, c.AssetRoot)
}

// silentProvider accepts connections and never answers them.
func silentProvider(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	conns := make(chan net.Conn, 16)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conns <- conn
		}
	}()
	t.Cleanup(func() {
		l.Close()
		for {
			select {
			case conn := <-conns:
				conn.Close()
			default:
				return
			}
		}
	})
	return l.Addr().String()
}

func TestServer_ServeWithSilentProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c := NewConfig(silentProvider(t), idp.TestClientID)
	c.AssetRoot = testAssetRoot(t)
	s, err := New(c)
	require.NoError(err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	b := &http.Client{
		Timeout:       3 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	base := "http://" + l.Addr().String()
	require.Eventually(func() bool {
		resp, err := b.Get(base + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp := testGet(t, b, base+"/healthz")
	assert.Contains(resp.body, `"auth":"not initialized"`)
	for _, route := range []string{"/auth/logout", "/auth/login", "/auth/token"} {
		resp := testGet(t, b, base+route)
		assert.Equal(http.StatusServiceUnavailable, resp.status, route)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServer_Serve(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := idp.StartTestProvider(t)
	s, err := New(testConfig(t, tp))
	require.NoError(err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	base := "http://" + l.Addr().String()
	require.Eventually(func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK && s.Bridge().Initialized()
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.False(s.Bridge().Initialized(), "the identity client is released at shutdown")
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind bridge.Kind
		want int
	}{
		{bridge.KindConfiguration, http.StatusInternalServerError},
		{bridge.KindNetwork, http.StatusBadGateway},
		{bridge.KindConsentDenied, http.StatusUnauthorized},
		{bridge.KindNotAuthenticated, http.StatusUnauthorized},
		{bridge.KindInvalidCallback, http.StatusBadRequest},
		{bridge.KindNotInitialized, http.StatusServiceUnavailable},
		{bridge.KindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(&bridge.Error{Op: "op", Kind: tt.kind}))
		})
	}
}

func TestServer_PageURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		trustProxy bool
		tls        bool
		header     map[string]string
		want       string
	}{
		{name: "plain", want: "http://app.internal:8080/?code=a&state=b"},
		{name: "tls", tls: true, want: "https://app.internal:8080/?code=a&state=b"},
		{
			name:   "untrusted-proxy",
			header: map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "evil.example.com"},
			want:   "http://app.internal:8080/?code=a&state=b",
		},
		{
			name:       "trusted-proxy",
			trustProxy: true,
			header:     map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "app.example.com, proxy.internal"},
			want:       "https://app.example.com/?code=a&state=b",
		},
		{
			name:       "trusted-proxy-bad-proto",
			trustProxy: true,
			header:     map[string]string{"X-Forwarded-Proto": "gopher"},
			want:       "http://app.internal:8080/?code=a&state=b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{config: &Config{TrustProxy: tt.trustProxy}}
			r := httptest.NewRequest(http.MethodGet, "http://app.internal:8080/?code=a&state=b", nil)
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, s.pageURL(r).String())
		})
	}
}
