// Package file provides a read-only clients.Registry loaded from a JSON
// document on disk. The document is watched with fsnotify and reloaded when
// it changes; a document that fails to parse leaves the previous snapshot in
// place.
//
// Document shape:
//
//	{
//	  "realms": {
//	    "master": [
//	      {"client_id": "acme", "enabled": true, "jwks_uri": "https://acme.example/jwks.json"}
//	    ]
//	  }
//	}
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/clientauth-go/clients"
)

type document struct {
	Realms map[string][]*clients.Client `json:"realms"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogHandler sets the slog handler used for reload diagnostics.
func WithLogHandler(h slog.Handler) Option {
	return func(r *Registry) { r.log = slog.New(h) }
}

// Registry implements clients.Registry from a watched JSON file.
type Registry struct {
	path string
	log  *slog.Logger

	mu     sync.RWMutex
	realms map[string]map[string]*clients.Client

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// Open loads path and starts watching it for changes. The initial load must
// succeed.
func Open(path string, opts ...Option) (*Registry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	r := &Registry{
		path: abs,
		log:  slog.New(slog.DiscardHandler),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file by rename are seen.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	r.watcher = w
	r.wg.Add(1)
	go r.watch()
	return r, nil
}

// Reload re-reads the document. On error the current snapshot is kept.
func (r *Registry) Reload() error {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read clients file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("parse clients file: %w", err)
	}
	realms := make(map[string]map[string]*clients.Client, len(doc.Realms))
	for realm, list := range doc.Realms {
		byID := make(map[string]*clients.Client, len(list))
		for _, c := range list {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("realm %s: %w", realm, err)
			}
			if _, dup := byID[c.ClientID]; dup {
				return fmt.Errorf("realm %s: duplicate client_id %q", realm, c.ClientID)
			}
			byID[c.ClientID] = c
		}
		realms[realm] = byID
	}
	r.mu.Lock()
	r.realms = realms
	r.mu.Unlock()
	return nil
}

// FindClientByClientID returns a copy of the client or nil if absent.
func (r *Registry) FindClientByClientID(ctx context.Context, realm, clientID string) (*clients.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.realms[realm][clientID]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

// Close stops watching the file.
func (r *Registry) Close() error {
	select {
	case <-r.done:
		return nil
	default:
	}
	close(r.done)
	err := r.watcher.Close()
	r.wg.Wait()
	return err
}

func (r *Registry) watch() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				// Partial writes show up as parse errors; the next event retries.
				r.log.Warn("clients_file.reload_failed", slog.String("path", r.path), slog.String("err", err.Error()))
				continue
			}
			r.log.Info("clients_file.reloaded", slog.String("path", r.path))
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn("clients_file.watch_error", slog.String("err", err.Error()))
		}
	}
}

var _ clients.Registry = (*Registry)(nil)
