package tasks

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/internal/dataflows"
	"github.com/dyike/cortexmarket/internal/scheduler"
	"github.com/dyike/cortexmarket/internal/service"
	"github.com/dyike/cortexmarket/models"
)

// IndexSource is the market service surface the index job drives.
type IndexSource interface {
	Matrix() map[string][]dataflows.IndexInfo
	Index(ctx context.Context, market, code string, useCache bool) (models.IndexQuote, bool, error)
	IndexHistory(ctx context.Context, market, code string, days int, useCache bool) service.Result[models.IndexQuote]
}

// MarketJob walks the index matrix one call at a time. After the first
// pass it warms the history caches once.
type MarketJob struct {
	src           IndexSource
	pacing        time.Duration
	historyPacing time.Duration
	warmupDays    []int
	warmed        atomic.Bool
}

func NewMarketJob(src IndexSource, pacing, historyPacing time.Duration, warmupDays []int) *MarketJob {
	return &MarketJob{src: src, pacing: pacing, historyPacing: historyPacing, warmupDays: warmupDays}
}

func (j *MarketJob) Run(ctx context.Context) error {
	matrix := j.src.Matrix()
	var total, failed int
	for _, market := range service.Markets {
		for _, ix := range matrix[market] {
			if total > 0 && !scheduler.Sleep(ctx, j.pacing) {
				return ctx.Err()
			}
			total++
			if _, ok, err := j.src.Index(ctx, market, ix.Code, false); err != nil || !ok {
				failed++
				logx.WithContext(ctx).Errorf("tasks: index refresh market=%s code=%s found=%t err=%v", market, ix.Code, ok, err)
			}
		}
	}
	if total > 0 && failed == total {
		return fmt.Errorf("market indices: all %d refreshes failed", total)
	}

	if !j.warmed.Swap(true) {
		j.warmUp(ctx, matrix)
	}
	return nil
}

func (j *MarketJob) warmUp(ctx context.Context, matrix map[string][]dataflows.IndexInfo) {
	var n int
	for _, market := range service.Markets {
		for _, ix := range matrix[market] {
			for _, days := range j.warmupDays {
				if !scheduler.Sleep(ctx, j.historyPacing) {
					return
				}
				if res := j.src.IndexHistory(ctx, market, ix.Code, days, false); res.Err != nil {
					logx.WithContext(ctx).Errorf("tasks: history warm-up code=%s days=%d err=%v", ix.Code, days, res.Err)
					continue
				}
				n++
			}
		}
	}
	logx.WithContext(ctx).Infof("tasks: index history warm-up done windows=%d", n)
}
