package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/match-service/internal/tasks"
)

var refitCmd = &cobra.Command{
	Use:   "refit",
	Short: "Rebuild the TF-IDF vector space from the current corpus",
	Long: `Refit fits the vectorizer on every stored job and persists the new state.
Serving replicas pick it up on their next restart. Run it after large corpus
changes or when the health report says a refit is needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log, false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.svc.Refit(ctx); err != nil {
			return err
		}
		m := a.vec.Current()
		if !m.Fitted() {
			return fmt.Errorf("vectorizer is still unfitted, is the corpus empty?")
		}
		log.Info("vectorizer refitted",
			zap.Int("documents", m.NumDocs()),
			zap.Int("vocabulary", m.VocabularySize()),
		)
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match [user-id]",
	Short: "Rescore one user, or every active user when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log, false)
		if err != nil {
			return err
		}
		defer a.close()

		if len(args) == 1 {
			n, err := a.svc.MatchUser(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%d matches stored for %s\n", n, args[0])
			return nil
		}
		sum, err := a.svc.MatchAllUsers(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("users=%d succeeded=%d skipped=%d failed=%d\n", sum.Users, sum.Succeeded, sum.Skipped, sum.Failed)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <user-id>",
	Short: "Scrape every source, then rescore one user, as the refresh endpoint does",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log, false)
		if err != nil {
			return err
		}
		defer a.close()

		task, err := a.svc.StartRefresh(ctx, args[0])
		if err != nil {
			return err
		}
		a.svc.Wait()

		task, err = a.tracker.Get(ctx, task.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", task.State, task.Message)
		if task.State == tasks.StateFailed {
			return fmt.Errorf("refresh failed: %s", task.Message)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete jobs older than the retention window and their matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log, false)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.svc.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d jobs and %d matches\n", res.Jobs, res.Matches)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refitCmd, matchCmd, refreshCmd, sweepCmd)
}
