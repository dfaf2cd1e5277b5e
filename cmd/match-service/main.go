// match-service ranks scraped job offers against user profiles.
//
// It keeps a corpus of recent jobs (Adzuna fetcher, Kafka jobs.scraped topic,
// seed files), projects jobs and profiles into a shared TF-IDF space and
// stores per-user relevance scores in user_job_matches. The Gateway reads
// them over the REST API; orchestrators watch the gRPC health service.
//
// Subcommands:
//   - serve          HTTP + gRPC server with cron jobs and the Kafka consumer
//   - refit          rebuild the vector space from the current corpus
//   - match [user]   rescore one user, or every active user
//   - sweep          delete jobs past the retention window
//   - seed --file    load jobs and profiles from a YAML file
//   - version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/match-service/internal/config"
	"jobmate/match-service/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfgFile string

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:          "match-service",
	Short:        "Rank scraped job offers against user profiles",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		log, err = logger.New(cfg.Log.JSON, cfg.Log.Debug)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = log.Named("match-service")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is match-service.yaml in current directory)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
