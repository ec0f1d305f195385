package cli

import (
	"github.com/spf13/cobra"

	"github.com/dyike/cortexmarket/internal/tasks"
	"github.com/dyike/cortexmarket/models"
)

func newNewsCmd(e *env) *cobra.Command {
	var (
		q    models.NewsQuery
		sync bool
	)
	cmd := &cobra.Command{
		Use:   "news",
		Short: "Query stored financial news",
		Long: `Query the news store. With --sync the news feeds are fetched and stored first,
the same work the serve command runs on its news schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if sync {
				if err := tasks.NewsJobFor(&a.Config, a.Stores, a.Providers).Run(ctx); err != nil {
					return err
				}
			}
			articles, err := a.Stores.News.Query(ctx, q)
			if err != nil {
				return err
			}
			renderNews(cmd.OutOrStdout(), articles, a.Config.Location())
			return nil
		},
	}
	cmd.Flags().StringVarP(&q.Keyword, "keyword", "k", "", "Match title, content or related sectors")
	cmd.Flags().StringVar(&q.Source, "source", "", "Source id: cls|eastmoney|pbc|csrc|ndrc|stats|miit|google|finnhub")
	cmd.Flags().StringVar(&q.Category, "category", "", "policy|news|data")
	cmd.Flags().IntVar(&q.Hours, "hours", 24, "Look back this many hours")
	cmd.Flags().IntVar(&q.MinImportance, "min-importance", 0, "Minimum importance 1-5")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "Maximum number of articles")
	cmd.Flags().BoolVar(&sync, "sync", false, "Fetch the news feeds before querying")
	return cmd
}
