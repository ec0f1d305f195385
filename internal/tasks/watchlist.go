package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/internal/scheduler"
	"github.com/dyike/cortexmarket/internal/service"
)

// WatchlistJob refreshes every user's watchlists while the market is open.
type WatchlistJob struct {
	syncers []service.WatchlistSyncer
	open    func(time.Time) bool
	pacing  time.Duration
	now     func() time.Time
}

func NewWatchlistJob(syncers []service.WatchlistSyncer, open func(time.Time) bool, pacing time.Duration) *WatchlistJob {
	return &WatchlistJob{syncers: syncers, open: open, pacing: pacing, now: time.Now}
}

func (j *WatchlistJob) Run(ctx context.Context) error {
	now := j.now()
	if !j.open(now) {
		return nil
	}
	var errs []error
	first := true
	for _, svc := range j.syncers {
		users, err := svc.WatchlistUsers(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s users: %w", svc.Class(), err))
			continue
		}
		for _, user := range users {
			if !first && !scheduler.Sleep(ctx, j.pacing) {
				return ctx.Err()
			}
			first = false
			n, err := svc.SyncWatchlist(ctx, user, now)
			if err != nil {
				logx.WithContext(ctx).Errorf("tasks: watchlist sync class=%s user=%s err=%v", svc.Class(), user, err)
				errs = append(errs, err)
				continue
			}
			logx.WithContext(ctx).Debugf("tasks: watchlist synced class=%s user=%s items=%d", svc.Class(), user, n)
		}
	}
	return errors.Join(errs...)
}
