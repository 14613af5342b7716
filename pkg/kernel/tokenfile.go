package kernel

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// tokenFileCredential reads a bearer token from a file. The file is read
// at construction, watched for changes, and re-read on modification, so a
// rotated token is picked up without restarting the router.
type tokenFileCredential struct {
	providerKey string
	path        string

	mu      sync.RWMutex
	token   string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

func newTokenFileCredential(providerKey, path string) (*tokenFileCredential, error) {
	c := &tokenFileCredential{
		providerKey: providerKey,
		path:        path,
		stopCh:      make(chan struct{}),
	}

	if err := c.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &CredentialError{
			ProviderKey: providerKey,
			Message:     "failed to create token file watcher",
			Cause:       err,
		}
	}

	// Watch the directory, not the file: editors and secret mounters
	// replace files atomically, which unregisters a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, &CredentialError{
			ProviderKey: providerKey,
			Message:     "failed to watch token file directory",
			Cause:       err,
		}
	}

	c.watcher = watcher
	go c.watchLoop()

	slog.Info("token file credential started",
		"provider", providerKey,
		"path", path,
	)

	return c, nil
}

// Apply sets the current token as a bearer Authorization header.
func (c *tokenFileCredential) Apply(req *http.Request) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == "" {
		return &CredentialError{
			ProviderKey: c.providerKey,
			Message:     fmt.Sprintf("token file %q is empty", c.path),
		}
	}

	req.Header.Set("Authorization", bearerValue(token))
	return nil
}

// reload re-reads the token file into the cache.
func (c *tokenFileCredential) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return &CredentialError{
			ProviderKey: c.providerKey,
			Message:     fmt.Sprintf("failed to read token file %q", c.path),
			Cause:       err,
		}
	}

	c.mu.Lock()
	c.token = strings.TrimSpace(string(data))
	c.mu.Unlock()
	return nil
}

// watchLoop processes file system events and refreshes the cached token.
func (c *tokenFileCredential) watchLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(c.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.reload(); err != nil {
				slog.Warn("token file reload failed",
					"provider", c.providerKey,
					"path", c.path,
					"error", err,
				)
				continue
			}
			slog.Info("token file reloaded",
				"provider", c.providerKey,
				"path", c.path,
			)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("token file watcher error",
				"provider", c.providerKey,
				"error", err,
			)

		case <-c.stopCh:
			return
		}
	}
}

// Close stops the watcher.
func (c *tokenFileCredential) Close() error {
	close(c.stopCh)
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}
