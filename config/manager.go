package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fsnotify/fsnotify"
	"github.com/zeromicro/go-zero/core/logx"
)

const configFileName = "config.json"

// ErrUnknownKey is returned when an overlay names a key Config does not have.
var ErrUnknownKey = errors.New("config: unknown key")

// Manager layers config.json over a base Config (defaults + .env + env).
// The file only holds keys that were set explicitly, so a key missing from
// it keeps following the base layer.
type Manager struct {
	path     string
	base     Config
	debounce time.Duration

	mu       sync.RWMutex
	overlay  map[string]any
	cfg      Config
	written  []byte
	onChange func(Config)
	watching bool
}

type managerOptions struct {
	dir      string
	base     *Config
	debounce time.Duration
}

type ManagerOption func(*managerOptions)

func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) { o.dir = dir }
}

// WithBase replaces DefaultConfig() as the layer under the file.
func WithBase(cfg *Config) ManagerOption {
	return func(o *managerOptions) { o.base = cfg }
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

func NewManager(opts ...ManagerOption) (*Manager, error) {
	o := managerOptions{debounce: 300 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	if o.base == nil {
		o.base = DefaultConfig()
	}
	if o.dir == "" {
		o.dir = o.base.DataDir
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	m := &Manager{
		path:     filepath.Join(o.dir, configFileName),
		base:     *o.base,
		debounce: o.debounce,
		overlay:  map[string]any{},
	}
	raw, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		raw = []byte("{}")
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", m.path, err)
	}
	overlay, cfg, err := m.resolve(raw)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", m.path, err)
	}
	if err := m.persist(overlay); err != nil {
		return nil, err
	}
	m.overlay, m.cfg = overlay, cfg
	return m, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string { return m.path }

// Overrides returns the keys currently set in config.json, sorted.
func (m *Manager) Overrides() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.overlay))
	for k := range m.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UpdateFromJSON merges a partial JSON object into the overlay. The merged
// config must validate before anything is written.
func (m *Manager) UpdateFromJSON(patch string) error {
	var delta map[string]any
	if err := sonic.ConfigStd.UnmarshalFromString(patch, &delta); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}

	m.mu.RLock()
	merged := make(map[string]any, len(m.overlay)+len(delta))
	for k, v := range m.overlay {
		merged[k] = v
	}
	m.mu.RUnlock()
	for k, v := range delta {
		merged[k] = v
	}

	raw, err := sonic.ConfigStd.Marshal(merged)
	if err != nil {
		return err
	}
	overlay, cfg, err := m.resolve(raw)
	if err != nil {
		return err
	}
	if err := m.persist(overlay); err != nil {
		return err
	}
	m.apply(overlay, cfg)
	return nil
}

// resolve decodes an overlay document and applies it on top of the base.
func (m *Manager) resolve(raw []byte) (map[string]any, Config, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	overlay := map[string]any{}
	if err := sonic.ConfigStd.Unmarshal(raw, &overlay); err != nil {
		return nil, Config{}, fmt.Errorf("decode overlay: %w", err)
	}
	known := knownKeys()
	var unknown []string
	for k := range overlay {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, Config{}, fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(unknown, ", "))
	}

	cfg := m.base
	if err := sonic.ConfigStd.Unmarshal(raw, &cfg); err != nil {
		return nil, Config{}, fmt.Errorf("decode overlay: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, Config{}, err
	}
	return overlay, cfg, nil
}

func knownKeys() map[string]bool {
	keys := map[string]bool{}
	var probe map[string]any
	raw, _ := sonic.ConfigStd.Marshal(Config{})
	_ = sonic.ConfigStd.Unmarshal(raw, &probe)
	for k := range probe {
		keys[k] = true
	}
	return keys
}

// persist writes the overlay through a temp file and rename.
func (m *Manager) persist(overlay map[string]any) error {
	data, err := sonic.ConfigStd.MarshalIndent(overlay, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	m.mu.RLock()
	same := bytes.Equal(data, m.written)
	m.mu.RUnlock()
	if same {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp config: %w", err)
	}
	// record the bytes before the rename so the watcher can recognise them
	m.mu.Lock()
	prev := m.written
	m.written = data
	m.mu.Unlock()
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		_ = os.Remove(tmp.Name())
		m.mu.Lock()
		m.written = prev
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) apply(overlay map[string]any, cfg Config) {
	m.mu.Lock()
	m.overlay, m.cfg = overlay, cfg
	cb := m.onChange
	m.mu.Unlock()
	if cb != nil {
		cb(cfg)
	}
}

// Watch calls onChange whenever config.json changes on disk to a different
// valid overlay. Writes made by this Manager are not reported twice.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) ||
				evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(m.debounce, m.reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logx.Errorf("config: watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) reload() {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logx.Errorf("config: reload failed: %v", err)
		}
		return
	}
	m.mu.RLock()
	own := bytes.Equal(raw, m.written)
	m.mu.RUnlock()
	if own {
		return
	}
	overlay, cfg, err := m.resolve(raw)
	if err != nil {
		logx.Errorf("config: ignoring %s: %v", m.path, err)
		return
	}
	m.mu.Lock()
	m.written = raw
	m.mu.Unlock()
	m.apply(overlay, cfg)
}
