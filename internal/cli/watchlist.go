package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dyike/cortexmarket/models"
)

func newWatchlistCmd(e *env) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:     "watchlist",
		Aliases: []string{"wl"},
		Short:   "Manage per-user watchlists",
	}
	cmd.PersistentFlags().StringVar(&user, "user", "default", "Owner of the watchlist")

	var scope string
	list := &cobra.Command{
		Use:   "list <class>",
		Short: "List a watchlist with the latest stored quotes",
		Args:  cobra.ExactArgs(1),
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
			rows, err := ops.Watchlist(ctx, user, scope)
			if err != nil {
				return err
			}
			renderWatchlist(cmd.OutOrStdout(), ops.Class(), rows)
			return nil
		},
	}
	list.Flags().StringVar(&scope, "scope", "", "Only entries of this category")

	var entry models.WatchlistEntry
	add := &cobra.Command{
		Use:   "add <class> <code>",
		Short: "Add an instrument to a watchlist",
		Args:  cobra.ExactArgs(2),
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
			entry.UserID = user
			entry.Code = args[1]
			saved, created, err := ops.Add(ctx, entry)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "已添加 %s %s 到 %s 自选\n", saved.Code, saved.Name, ops.Class())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s 已在 %s 自选中\n", saved.Code, ops.Class())
			}
			return nil
		},
	}
	add.Flags().StringVar(&entry.Name, "name", "", "Display name")
	add.Flags().StringVar(&entry.Category, "category", "", "Category used as watchlist scope")
	add.Flags().IntVar(&entry.SortOrder, "sort", 0, "Sort order")
	add.Flags().StringVar(&entry.Notes, "notes", "", "Free text notes")

	remove := &cobra.Command{
		Use:     "remove <class> <code>",
		Aliases: []string{"rm"},
		Short:   "Remove an instrument from a watchlist",
		Args:    cobra.ExactArgs(2),
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
			removed, err := ops.Remove(ctx, user, args[1])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s 不在 %s 自选中\n", args[1], ops.Class())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已移除 %s\n", args[1])
			return nil
		},
	}

	var (
		sortOrder string
		notes     string
	)
	update := &cobra.Command{
		Use:   "update <class> <code>",
		Short: "Change sort order or notes of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sortPtr  *int
				notesPtr *string
			)
			if cmd.Flags().Changed("sort") {
				n, err := strconv.Atoi(sortOrder)
				if err != nil {
					return usageErrorf("--sort must be an integer")
				}
				sortPtr = &n
			}
			if cmd.Flags().Changed("notes") {
				notesPtr = &notes
			}
			if sortPtr == nil && notesPtr == nil {
				return usageErrorf("nothing to update: set --sort or --notes")
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
			saved, found, err := ops.Update(ctx, user, args[1], sortPtr, notesPtr)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s 不在 %s 自选中\n", args[1], ops.Class())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已更新 %s: 排序 %d 备注 %q\n", saved.Code, saved.SortOrder, saved.Notes)
			return nil
		},
	}
	update.Flags().StringVar(&sortOrder, "sort", "", "New sort order")
	update.Flags().StringVar(&notes, "notes", "", "New notes")

	cmd.AddCommand(list, add, remove, update)
	return cmd
}
