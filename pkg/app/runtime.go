package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/config"
)

type Option func(*Runtime)

func WithNotifier(fn func(topic string, cfg config.Config)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

// Runtime keeps the live config of a long running process in sync with the
// config file. Settings that can change in place (log level) are applied on
// every reload; the rest take effect on the next start.
type Runtime struct {
	cfgMgr  *config.Manager
	current atomic.Pointer[config.Config]
	reloads atomic.Uint64

	notify func(string, config.Config)
	cancel context.CancelFunc
}

func NewRuntime(ctx context.Context, cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}
	rt := &Runtime{cfgMgr: cfgMgr}
	for _, opt := range opts {
		opt(rt)
	}

	cfg := cfgMgr.Get()
	rt.current.Store(&cfg)
	ApplyLogLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	if err := cfgMgr.Watch(ctx, rt.reload); err != nil {
		cancel()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) Config() config.Config {
	return *r.current.Load()
}

// Reloads counts applied config changes.
func (r *Runtime) Reloads() uint64 {
	return r.reloads.Load()
}

func (r *Runtime) UpdateConfigJSON(jsonStr string) error {
	return r.cfgMgr.UpdateFromJSON(jsonStr)
}

func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) reload(cfg config.Config) {
	prev := r.Config()
	r.current.Store(&cfg)
	r.reloads.Add(1)
	if prev.LogLevel != cfg.LogLevel {
		ApplyLogLevel(cfg.LogLevel)
		logx.Infof("runtime: log level %s -> %s", prev.LogLevel, cfg.LogLevel)
	}
	if r.notify != nil {
		r.notify("config.reloaded", cfg)
	}
}

// ApplyLogLevel maps a config level name onto logx. Unknown names fall back
// to info.
func ApplyLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logx.SetLevel(logx.DebugLevel)
	case "error":
		logx.SetLevel(logx.ErrorLevel)
	case "severe":
		logx.SetLevel(logx.SevereLevel)
	default:
		logx.SetLevel(logx.InfoLevel)
	}
}
