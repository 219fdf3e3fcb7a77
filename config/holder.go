// Package config provides configuration loading and hot reload.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

// field names one configuration value and reads it for change reporting.
type field struct {
	name string
	get  func(*Config) string
}

// reloadable fields are applied to a running server without a restart.
var reloadable = []field{
	{"output.layout", func(c *Config) string { return c.Output.Layout }},
	{"export.optional", func(c *Config) string { return c.Export.Optional }},
	{"export.integers", func(c *Config) string { return c.Export.Integers }},
	{"export.workers", func(c *Config) string { return strconv.Itoa(c.Export.Workers) }},
	{"check.policy", func(c *Config) string { return c.Check.Policy }},
	{"logging.level", func(c *Config) string { return c.Logging.Level }},
}

// restartOnly fields are read once at startup.
var restartOnly = []field{
	{"schema.dir", func(c *Config) string { return c.Schema.Dir }},
	{"output.dir", func(c *Config) string { return c.Output.Dir }},
	{"watch.debounce", func(c *Config) string { return c.Watch.Debounce.String() }},
	{"server.host", func(c *Config) string { return c.Server.Host }},
	{"server.port", func(c *Config) string { return strconv.Itoa(c.Server.Port) }},
	{"database.driver", func(c *Config) string { return c.Database.Driver }},
	{"database.dsn", func(c *Config) string { return c.Database.DSN }},
	{"logging.format", func(c *Config) string { return c.Logging.Format }},
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string { return names(reloadable) }

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string { return names(restartOnly) }

func names(fields []field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.name
	}
	return out
}

// Holder keeps the live configuration. It reloads when the config file or
// the policy file it points at changes, and on SIGHUP.
type Holder struct {
	mu         sync.RWMutex
	config     *Config
	digest     [blake2b.Size256]byte
	generation uint64
	onChange   []func(*Config)
	onError    []func(error)

	path     string
	logger   zerolog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	cfg, err := Load(absPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	debounce := cfg.Watch.Debounce
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &Holder{
		config:   cfg,
		digest:   inputDigest(absPath, cfg),
		path:     absPath,
		logger:   logger,
		debounce: debounce,
		stop:     make(chan struct{}),
	}, nil
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Generation counts the reloads that replaced the configuration.
func (h *Holder) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

// Reload re-reads the config file. A config that fails to load is reported
// to OnError listeners and the old one stays active. When neither the config
// file nor its policy file changed, Reload does nothing.
func (h *Holder) Reload() error {
	next, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping old config")
		h.mu.RLock()
		handlers := h.onError
		h.mu.RUnlock()
		for _, fn := range handlers {
			fn(err)
		}
		return fmt.Errorf("reload config: %w", err)
	}

	digest := inputDigest(h.path, next)

	h.mu.Lock()
	if digest == h.digest {
		h.mu.Unlock()
		h.logger.Debug().Str("path", h.path).Msg("config unchanged")
		return nil
	}
	prev := h.config
	h.config, h.digest = next, digest
	h.generation++
	generation := h.generation
	handlers := h.onChange
	h.mu.Unlock()

	h.logChanges(prev, next)
	for _, fn := range handlers {
		fn(next)
	}

	h.logger.Info().Uint64("generation", generation).Msg("configuration reloaded")
	return nil
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnError registers a callback for failed reloads. The old config stays
// active when it fires.
func (h *Holder) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// WatchFile watches the config file and the policy file it references.
// Bursts of events are coalesced into one reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Directories, not files: editors replace files on save.
	for _, dir := range h.watchDirs() {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Dur("debounce", h.debounce).Msg("watching config for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				h.Reload()
			case <-h.stop:
				return
			}
		}
	}()
}

// Stop stops watching for file changes and signals. It is safe to call
// more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

// watched returns the absolute files whose changes trigger a reload.
func (h *Holder) watched() map[string]bool {
	files := map[string]bool{h.path: true}
	if p := policyPath(h.Get()); p != "" {
		files[p] = true
	}
	return files
}

func (h *Holder) watchDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	for file := range h.watched() {
		dir := filepath.Dir(file)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (h *Holder) watchLoop() {
	timer := time.NewTimer(h.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !h.watched()[abs] {
				continue
			}

			h.logger.Debug().Str("event", event.Op.String()).Str("file", event.Name).Msg("config input changed")
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(h.debounce)
			pending = true

		case <-timer.C:
			pending = false
			if h.Reload() == nil {
				h.watchNewDirs()
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")

		case <-h.stop:
			return
		}
	}
}

// watchNewDirs adds the directory of a policy file that moved since the
// watch started.
func (h *Holder) watchNewDirs() {
	current := make(map[string]bool)
	for _, dir := range h.watcher.WatchList() {
		current[dir] = true
	}
	for _, dir := range h.watchDirs() {
		if current[dir] {
			continue
		}
		if err := h.watcher.Add(dir); err != nil {
			h.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch policy directory")
		}
	}
}

func (h *Holder) logChanges(prev, next *Config) {
	for _, f := range reloadable {
		if old, cur := f.get(prev), f.get(next); old != cur {
			h.logger.Info().Str("field", f.name).Str("old", old).Str("new", cur).Msg("config field changed")
		}
	}
	for _, f := range restartOnly {
		if old, cur := f.get(prev), f.get(next); old != cur {
			h.logger.Warn().Str("field", f.name).Str("old", old).Str("new", cur).Msg("config field changed; takes effect after restart")
		}
	}
}

// RestartRequired lists the restart-only fields that differ between prev
// and next.
func RestartRequired(prev, next *Config) []string {
	var out []string
	for _, f := range restartOnly {
		if f.get(prev) != f.get(next) {
			out = append(out, f.name)
		}
	}
	return out
}

func policyPath(cfg *Config) string {
	if cfg == nil || cfg.Check.Policy == "" {
		return ""
	}
	p, err := filepath.Abs(cfg.Check.Policy)
	if err != nil {
		return ""
	}
	return p
}

// inputDigest hashes the config file and the policy file it references.
// An unreadable policy hashes as empty; loading it reports the error.
func inputDigest(path string, cfg *Config) [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	if data, err := os.ReadFile(path); err == nil {
		h.Write(data)
	}
	h.Write([]byte{0})
	if p := policyPath(cfg); p != "" {
		h.Write([]byte(p))
		h.Write([]byte{0})
		if data, err := os.ReadFile(p); err == nil {
			h.Write(data)
		}
	}
	var sum [blake2b.Size256]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
