package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/cortexmarket/internal/service"
	"github.com/dyike/cortexmarket/models"
)

func newQuoteCmd(e *env) *cobra.Command {
	var (
		category string
		noCache  bool
	)
	cmd := &cobra.Command{
		Use:   "quote <class> [codes...]",
		Short: "Show realtime quotes of an asset class",
		Long: `Show realtime quotes. class is one of stock|fund|bond|futures|forex|gold|market.
Codes may be space or comma separated; without codes the default universe is listed.
Example: cortexmarket quote stock 000001,600519 --category CN`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ops, err := opsFor(a.Services, args[0])
			if err != nil {
				return err
			}
			filter := models.Filter{Codes: splitArgs(args[1:]), Category: category}
			rows, src, err := ops.Realtime(ctx, filter, !noCache)
			if err != nil {
				return err
			}
			renderQuotes(cmd.OutOrStdout(), fmt.Sprintf("%s 行情", ops.Class()), rows, src, nil)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Class specific category (market, bond type, fund type, ...)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the cache and ask the provider")
	return cmd
}

func newHistoryCmd(e *env) *cobra.Command {
	var (
		days    int
		period  string
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "history <class> <code>",
		Short: "Show historical bars of one instrument",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch period {
			case models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly:
			default:
				return usageErrorf("period must be daily|weekly|monthly, got %q", period)
			}
			if days <= 0 {
				return usageErrorf("--days must be positive")
			}
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ops, err := opsFor(a.Services, args[0])
			if err != nil {
				return err
			}
			rows, src, err := ops.History(ctx, args[1], models.HistoryRange{Period: period, Days: days}, !noCache)
			if err != nil {
				return err
			}
			renderBars(cmd.OutOrStdout(), fmt.Sprintf("%s %s 近 %d 天", ops.Class(), args[1], days), rows, src, nil)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Trailing window in days")
	cmd.Flags().StringVar(&period, "period", models.PeriodDaily, "Bar period: daily|weekly|monthly")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the cache and ask the provider")
	return cmd
}

func newSearchCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "search <class> <keyword>",
		Short: "Search instruments by code or name",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ops, err := opsFor(a.Services, args[0])
			if err != nil {
				return err
			}
			keyword := strings.Join(args[1:], " ")
			rows, src, err := ops.Search(ctx, keyword)
			if err != nil {
				return err
			}
			renderQuotes(cmd.OutOrStdout(), fmt.Sprintf("搜索 %q", keyword), rows, src, nil)
			return nil
		},
	}
}

func newIndexCmd(e *env) *cobra.Command {
	var (
		days    int
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "index [market [code]]",
		Short: "Show the CN/HK/US index matrix",
		Long: `Without arguments every tracked index is listed. With a market (CN|HK|US) only
that market is listed; with a market and an index code the index and, when --days is
set, its daily history are shown.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			market := a.Services.Market
			out := cmd.OutOrStdout()
			switch len(args) {
			case 0, 1:
				name := ""
				if len(args) == 1 {
					name = strings.ToUpper(args[0])
					if _, ok := market.Matrix()[name]; !ok {
						return fmt.Errorf("%w: market %q", service.ErrInvalidArgument, args[0])
					}
				}
				res := market.Indices(ctx, name, !noCache)
				rows, src, err := unwrap(res)
				if err != nil {
					return err
				}
				renderQuotes(out, "指数 "+name, rows, src, res.Err)
				return nil
			}

			q, found, err := market.Index(ctx, args[0], args[1], !noCache)
			if err != nil {
				return err
			}
			if found {
				renderQuotes(out, q.Name, []models.Quote{q.Base()}, service.SourceProvider, nil)
			} else {
				fmt.Fprintln(out, warnStyle.Render("⚠ 暂无该指数行情"))
			}
			if days > 0 {
				res := market.IndexHistory(ctx, args[0], args[1], days, !noCache)
				rows, src, err := unwrap(res)
				if err != nil {
					return err
				}
				renderBars(out, fmt.Sprintf("%s 近 %d 天", args[1], days), rows, src, res.Err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Also show a trailing window of daily bars")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the cache and ask the provider")
	return cmd
}

func newFundsCmd(e *env) *cobra.Command {
	var (
		limit   int
		noCache bool
	)
	cmd := &cobra.Command{
		Use:       "funds <types|etf|ranking>",
		Short:     "Fund board views: type summary, hot ETFs, ranking",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"types", "etf", "ranking"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			funds := a.Services.Fund
			out := cmd.OutOrStdout()
			var res service.Result[models.FundQuote]
			switch args[0] {
			case "types":
				stats, err := funds.TypeSummary(ctx, !noCache)
				if err != nil {
					return err
				}
				renderFundTypes(out, stats)
				return nil
			case "etf":
				res = funds.HotETFs(ctx, limit, !noCache)
			case "ranking":
				res = funds.Ranking(ctx, limit, !noCache)
			default:
				return usageErrorf("unknown fund view %q", args[0])
			}
			rows, src, err := unwrap(res)
			if err != nil {
				return err
			}
			renderQuotes(out, "基金 "+args[0], rows, src, res.Err)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of funds to list")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the cache and ask the provider")
	return cmd
}
