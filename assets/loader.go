// SPDX-License-Identifier: MPL-2.0

package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultModulePath is the URL path of the module the host page boots.
const DefaultModulePath = "/pkg/package_bg.wasm"

// ContentType is the media type browsers require to stream-compile a module.
const ContentType = "application/wasm"

var wasmMagic = []byte{0x00, 'a', 's', 'm'}

const wasmVersion = 1

// Loader loads a WebAssembly module from disk and serves it.
type Loader struct {
	root       string
	modulePath string
	logger     hclog.Logger

	mu      sync.RWMutex
	module  []byte
	etag    string
	modTime time.Time
	err     error
}

// NewLoader creates a Loader for the static files under root.
//
// Supported options: WithModulePath, WithLogger
func NewLoader(root string, opt ...Option) (*Loader, error) {
	const op = "assets.NewLoader"
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%s: root is empty: %w", op, ErrInvalidParameter)
	}
	opts := getLoaderOpts(opt...)
	modulePath := path.Clean("/" + opts.withModulePath)
	if path.Ext(modulePath) != ".wasm" {
		return nil, fmt.Errorf("%s: module path %q is not a .wasm file: %w", op, modulePath, ErrInvalidParameter)
	}
	return &Loader{
		root:       root,
		modulePath: modulePath,
		logger:     opts.withLogger.Named("assets"),
		err:        ErrNotLoaded,
	}, nil
}

// ModulePath returns the URL path the module is served at.
func (l *Loader) ModulePath() string { return l.modulePath }

// File returns the module's location on disk.
func (l *Loader) File() string {
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(l.modulePath, "/")))
}

// Load reads and validates the module. It can be called again to reload
// the module; a failed reload keeps serving the previous module.
func (l *Loader) Load(ctx context.Context) error {
	const op = "Loader.Load"
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return l.fail(fmt.Errorf("%s: %w", op, err))
	}
	file := l.File()
	info, err := os.Stat(file)
	if err != nil {
		return l.fail(fmt.Errorf("%s: %w", op, err))
	}
	if info.IsDir() {
		return l.fail(fmt.Errorf("%s: %s is a directory: %w", op, file, ErrInvalidModule))
	}
	module, err := os.ReadFile(file)
	if err != nil {
		return l.fail(fmt.Errorf("%s: %w", op, err))
	}
	if err := validate(module); err != nil {
		return l.fail(fmt.Errorf("%s: %s: %w", op, file, err))
	}
	sum := sha256.Sum256(module)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`

	l.mu.Lock()
	l.module, l.etag, l.modTime, l.err = module, etag, info.ModTime(), nil
	l.mu.Unlock()
	l.logger.Info("module loaded", "file", file, "bytes", len(module), "etag", etag, "elapsed", time.Since(start))
	return nil
}

func (l *Loader) fail(err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.module == nil {
		l.err = err
	}
	l.logger.Error("module load failed", "error", err)
	return err
}

// validate checks the module preamble: the "\0asm" magic followed by
// binary format version 1.
func validate(module []byte) error {
	if len(module) < 8 {
		return fmt.Errorf("module is %d bytes, too short for a preamble: %w", len(module), ErrInvalidModule)
	}
	if !bytes.Equal(module[:4], wasmMagic) {
		return fmt.Errorf("missing \\0asm magic: %w", ErrInvalidModule)
	}
	if v := binary.LittleEndian.Uint32(module[4:8]); v != wasmVersion {
		return fmt.Errorf("unsupported binary format version %d: %w", v, ErrInvalidModule)
	}
	return nil
}

// Ready reports whether a module is loaded.
func (l *Loader) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.module != nil
}

// Err returns why no module is loaded: ErrNotLoaded before the first Load,
// or the Load failure. It's nil once a module is loaded.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// ETag returns the loaded module's entity tag.
func (l *Loader) ETag() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.etag
}

// Handler serves the static files under the loader's root. The module is
// served from memory, with 503 until it's loaded; it's revalidated with its
// ETag. Other files are served from disk.
func (l *Loader) Handler() http.Handler {
	files := http.FileServer(http.Dir(l.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path.Clean(r.URL.Path) != l.modulePath {
			files.ServeHTTP(w, r)
			return
		}
		l.mu.RLock()
		module, etag, modTime := l.module, l.etag, l.modTime
		l.mu.RUnlock()
		if module == nil {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "module is not loaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", ContentType)
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, path.Base(l.modulePath), modTime, bytes.NewReader(module))
	})
}
