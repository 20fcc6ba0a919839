// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/timetracker/authbridge/idp"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

type pageData struct {
	User       *idp.UserProfile
	Notice     string
	ModulePath string
}

// ModuleScript is the JavaScript glue generated next to the module, ie:
// /pkg/package.js for /pkg/package_bg.wasm.
func (d pageData) ModuleScript() string {
	return strings.TrimSuffix(strings.TrimSuffix(d.ModulePath, ".wasm"), "_bg") + ".js"
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.logger.Error("unable to render page", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
