package tasks

import (
	"context"
	"sync/atomic"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/internal/dataflows"
	"github.com/dyike/cortexmarket/internal/scheduler"
	"github.com/dyike/cortexmarket/internal/service"
	"github.com/dyike/cortexmarket/models"
)

// RealtimeSource is any service whose default universe can be refreshed.
type RealtimeSource[R models.Record] interface {
	GetRealtime(ctx context.Context, f models.Filter, useCache bool) service.Result[R]
}

// Refresh pulls the full realtime universe of one class past the cache.
func Refresh[R models.Record](name string, src RealtimeSource[R]) scheduler.Func {
	return func(ctx context.Context) error {
		res := src.GetRealtime(ctx, models.Filter{}, false)
		if res.Err != nil {
			return res.Err
		}
		logx.WithContext(ctx).Debugf("tasks: %s refreshed count=%d", name, len(res.Records))
		return nil
	}
}

// FundSource is the fund service surface used by the fund and ETF jobs.
type FundSource interface {
	RealtimeSource[models.FundQuote]
	TypeSummary(ctx context.Context, useCache bool) ([]service.FundTypeStat, error)
	HotETFs(ctx context.Context, limit int, useCache bool) service.Result[models.FundQuote]
	Ranking(ctx context.Context, limit int, useCache bool) service.Result[models.FundQuote]
}

// FundSummary refreshes the fund list and its per-type summary in one fetch.
func FundSummary(src FundSource) scheduler.Func {
	return func(ctx context.Context) error {
		stats, err := src.TypeSummary(ctx, false)
		if err != nil {
			return err
		}
		logx.WithContext(ctx).Debugf("tasks: fund summary types=%d", len(stats))
		return nil
	}
}

const hotETFLimit = 20

type ETFJob struct {
	src    FundSource
	warmed atomic.Bool
}

func NewETFJob(src FundSource) *ETFJob {
	return &ETFJob{src: src}
}

// Run refreshes the hot ETF list; the first run also fills the LOF board
// and the fund ranking.
func (j *ETFJob) Run(ctx context.Context) error {
	if res := j.src.HotETFs(ctx, hotETFLimit, false); res.Err != nil {
		return res.Err
	}
	if j.warmed.Swap(true) {
		return nil
	}
	if res := j.src.GetRealtime(ctx, models.Filter{Category: dataflows.FundCategoryLOF}, false); res.Err != nil {
		logx.WithContext(ctx).Errorf("tasks: LOF warm-up err=%v", res.Err)
	}
	if res := j.src.Ranking(ctx, 0, false); res.Err != nil {
		logx.WithContext(ctx).Errorf("tasks: fund ranking warm-up err=%v", res.Err)
	}
	return nil
}

// Sweeper drops expired cache keys; see cache.Cache.Sweep.
type Sweeper interface {
	Sweep() (int, bool)
}

// CacheSweep removes expired keys from backends that keep them around.
func CacheSweep(c Sweeper) scheduler.Func {
	return func(ctx context.Context) error {
		if n, _ := c.Sweep(); n > 0 {
			logx.WithContext(ctx).Debugf("tasks: cache sweep dropped=%d", n)
		}
		return nil
	}
}
