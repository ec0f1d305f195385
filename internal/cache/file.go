package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/zeromicro/go-zero/core/logx"
)

// fileEntry is the on-disk form of one key.
type fileEntry struct {
	Key       string `json:"key"`
	ExpiresAt int64  `json:"expires_at"` // unix nanos, 0 = never
	Value     []byte `json:"value"`
}

// FileBackend keeps one file per key under dir, so every process pointed at
// the same directory shares the cache. Writes go through a temp file and
// rename; readers never see a partial value.
type FileBackend struct {
	dir string
	now func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileBackend{dir: dir, now: time.Now}, nil
}

func (f *FileBackend) path(key string) string {
	sum := sha1.Sum([]byte(key))
	name := hex.EncodeToString(sum[:])
	// 两级目录，避免单目录文件过多
	return filepath.Join(f.dir, name[:2], name+".json")
}

func (f *FileBackend) read(p string) (fileEntry, bool, error) {
	var e fileEntry
	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	if err := sonic.Unmarshal(raw, &e); err != nil {
		// a torn or foreign file is a miss
		_ = os.Remove(p)
		return e, false, nil
	}
	return e, true, nil
}

func (f *FileBackend) expired(e fileEntry) bool {
	return e.ExpiresAt != 0 && f.now().UnixNano() >= e.ExpiresAt
}

func (f *FileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	p := f.path(key)
	e, ok, err := f.read(p)
	if err != nil {
		return nil, false, err
	}
	if !ok || e.Key != key || f.expired(e) {
		if ok && f.expired(e) {
			_ = os.Remove(p)
		}
		f.misses.Add(1)
		return nil, false, nil
	}
	f.hits.Add(1)
	return e.Value, true, nil
}

func (f *FileBackend) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := fileEntry{Key: key, Value: val}
	if ttl > 0 {
		e.ExpiresAt = f.now().Add(ttl).UnixNano()
	}
	data, err := sonic.Marshal(e)
	if err != nil {
		return err
	}
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (f *FileBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FileBackend) Exists(_ context.Context, key string) (bool, error) {
	e, ok, err := f.read(f.path(key))
	if err != nil || !ok {
		return false, err
	}
	return e.Key == key && !f.expired(e), nil
}

// Sweep deletes expired entries and leftover temp files.
func (f *FileBackend) Sweep() int {
	n := 0
	err := filepath.WalkDir(f.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".tmp-") {
			if info, err := d.Info(); err == nil && f.now().Sub(info.ModTime()) > time.Minute {
				_ = os.Remove(p)
			}
			return nil
		}
		if e, ok, _ := f.read(p); ok && f.expired(e) {
			if os.Remove(p) == nil {
				n++
			}
		}
		return nil
	})
	if err != nil {
		logx.Errorf("cache: sweep dir=%s err=%v", f.dir, err)
	}
	return n
}

func (f *FileBackend) Stats() Stats {
	s := Stats{Hits: f.hits.Load(), Misses: f.misses.Load()}
	_ = filepath.WalkDir(f.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		if e, ok, _ := f.read(p); ok && !f.expired(e) {
			s.Size++
			s.Keys = append(s.Keys, e.Key)
		}
		return nil
	})
	sort.Strings(s.Keys)
	return s
}
