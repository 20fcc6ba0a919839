// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/timetracker/authbridge/assets"
	"github.com/timetracker/authbridge/bridge"
	"github.com/timetracker/authbridge/session"
	"golang.org/x/text/language"
)

// maxLanguages bounds the ui_locales passed on to the provider.
const maxLanguages = 5

// page binds the request to its browser session, creating one when needed.
func (s *Server) page(w http.ResponseWriter, r *http.Request) (bridge.Page, error) {
	u := s.pageURL(r)
	sess, created, err := session.FromRequest(r.Context(), s.store, r)
	if err != nil {
		return bridge.Page{}, err
	}
	if created {
		session.WriteCookie(w, sess, u.Scheme == "https")
	}
	return bridge.Page{
		URL:       u,
		Session:   sess,
		Languages: acceptLanguages(r),
	}, nil
}

// pageURL returns the absolute URL the browser asked for.
func (s *Server) pageURL(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if s.config.TrustProxy {
		if p := firstHeaderValue(r, "X-Forwarded-Proto"); p == "http" || p == "https" {
			scheme = p
		}
		if h := firstHeaderValue(r, "X-Forwarded-Host"); h != "" {
			host = h
		}
	}
	return &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
}

func firstHeaderValue(r *http.Request, name string) string {
	v, _, _ := strings.Cut(r.Header.Get(name), ",")
	return strings.TrimSpace(v)
}

func acceptLanguages(r *http.Request) []language.Tag {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return nil
	}
	if len(tags) > maxLanguages {
		tags = tags[:maxLanguages]
	}
	return tags
}

// statusFor maps a bridge failure to an http status.
func statusFor(err error) int {
	switch bridge.KindOf(err) {
	case bridge.KindConfiguration:
		return http.StatusInternalServerError
	case bridge.KindNetwork:
		return http.StatusBadGateway
	case bridge.KindConsentDenied, bridge.KindNotAuthenticated:
		return http.StatusUnauthorized
	case bridge.KindInvalidCallback:
		return http.StatusBadRequest
	case bridge.KindNotInitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "kind", bridge.KindOf(err).String(), "error", err)
	} else {
		s.logger.Debug("request refused", "path", r.URL.Path, "kind", bridge.KindOf(err).String(), "error", err)
	}
	s.writeJSON(w, status, errorResponse{
		Error: http.StatusText(status),
		Kind:  bridge.KindOf(err).String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("unable to write response", "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	p, err := s.page(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	callback := bridge.IsRedirectCallback(p.URL) || bridge.IsErrorCallback(p.URL)
	user, err := s.bridge.InitAuth(r.Context(), s.config.Domain, s.config.ClientID, p)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("auth initialization failed", "kind", bridge.KindOf(err).String(), "error", err)
		}
		s.renderPage(w, status, pageData{Notice: noticeFor(err), ModulePath: s.config.ModulePath})
		return
	}
	if callback {
		// drop code and state from the address bar
		http.Redirect(w, r, p.URL.Path, http.StatusSeeOther)
		return
	}
	s.renderPage(w, http.StatusOK, pageData{User: user, ModulePath: s.config.ModulePath})
}

func noticeFor(err error) string {
	switch bridge.KindOf(err) {
	case bridge.KindConsentDenied:
		return "Sign in was cancelled."
	case bridge.KindInvalidCallback:
		return "Your sign in attempt expired, please try again."
	case bridge.KindNetwork:
		return "The sign in service is unavailable, please try again later."
	default:
		return "Sign in is unavailable."
	}
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	p, err := s.page(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.bridge.InitAuth(r.Context(), s.config.Domain, s.config.ClientID, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	p, err := s.page(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.bridge.Token(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: string(t.AccessToken),
		TokenType:   "Bearer",
		Expiry:      t.Expiry,
	})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.redirect(w, r, func(p bridge.Page) (string, error) { return s.bridge.BeginSignUp(r.Context(), p) })
}

func (s *Server) handleLogIn(w http.ResponseWriter, r *http.Request) {
	s.redirect(w, r, func(p bridge.Page) (string, error) { return s.bridge.BeginLogIn(r.Context(), p) })
}

func (s *Server) handleLogOut(w http.ResponseWriter, r *http.Request) {
	s.redirect(w, r, s.bridge.LogOut)
}

// redirect sends the browser to the URL returned by the entry point.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, entry func(bridge.Page) (string, error)) {
	p, err := s.page(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := entry(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, to, http.StatusFound)
}

type healthResponse struct {
	Module string `json:"module"`
	Auth   string `json:"auth"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Module: "ok", Auth: "ok"}
	status := http.StatusOK
	// the loader logs the failure detail
	if err := s.assets.Err(); err != nil {
		status = http.StatusServiceUnavailable
		resp.Module = "failed"
		if errors.Is(err, assets.ErrNotLoaded) {
			resp.Module = "loading"
		}
	}
	if !s.bridge.Initialized() {
		resp.Auth = "not initialized"
	}
	s.writeJSON(w, status, resp)
}
