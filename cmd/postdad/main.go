package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiowebux/postdad/internal/cli"
	"github.com/studiowebux/postdad/internal/sentinel"
	"github.com/studiowebux/postdad/internal/stress"
	upstream "github.com/studiowebux/postdad/internal/version"
)

var version = "0.1.0"

var opts cli.Options

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "postdad",
	Short: "postdad - API request execution engine",
	Long: `postdad executes request collections over HTTP, WebSocket and gRPC,
with variable resolution, scripted hooks, response chaining and
execution history.

Collections and environments live in ~/.postdad as HCL files.

Examples:
  postdad run api                         # run the 'api' collection
  postdad run ./smoke.hcl                 # run a collection file
  postdad run api -r Login                # run a single request
  postdad run api --env prod -o json     # prod environment, json report
  postdad stress api -r Login -w 20 -d 30s
  postdad sentinel api -r Health -i 10s --fail-keyword degraded`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	runRequest string

	runCmd = &cobra.Command{
		Use:   "run <collection>",
		Short: "Run a collection headless and report pass/fail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := cli.Build(opts)
			if err != nil {
				return err
			}
			defer engine.Close()

			col, err := engine.LoadCollection(opts, args[0])
			if err != nil {
				return err
			}
			defs, err := cli.FindRequest(col, runRequest)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary := engine.Runner().Run(ctx, defs)
			if err := cli.RenderSummary(os.Stdout, engine.Output, summary); err != nil {
				return err
			}
			if !summary.Success() {
				os.Exit(1)
			}
			return nil
		},
	}
)

var (
	stressRequest  string
	stressWorkers  int
	stressDuration time.Duration

	stressCmd = &cobra.Command{
		Use:   "stress <collection>",
		Short: "Run a fixed-duration load burst against one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stressRequest == "" {
				return fmt.Errorf("stress needs a request, use -r")
			}

			engine, err := cli.Build(opts)
			if err != nil {
				return err
			}
			defer engine.Close()

			col, err := engine.LoadCollection(opts, args[0])
			if err != nil {
				return err
			}
			defs, err := cli.FindRequest(col, stressRequest)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := stress.Config{Workers: stressWorkers, Duration: stressDuration}
			stats, err := stress.New(engine.Pipeline).Run(ctx, cfg, defs[0])
			if err != nil {
				return err
			}
			return cli.RenderStats(os.Stdout, engine.Output, stats)
		},
	}
)

var (
	sentinelRequest  string
	sentinelInterval time.Duration
	sentinelKeyword  string
	sentinelExpect   int
	sentinelExport   string

	sentinelCmd = &cobra.Command{
		Use:   "sentinel <collection>",
		Short: "Monitor one request on an interval until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sentinelRequest == "" {
				return fmt.Errorf("sentinel needs a request, use -r")
			}

			engine, err := cli.Build(opts)
			if err != nil {
				return err
			}
			defer engine.Close()

			col, err := engine.LoadCollection(opts, args[0])
			if err != nil {
				return err
			}
			defs, err := cli.FindRequest(col, sentinelRequest)
			if err != nil {
				return err
			}

			cfg := sentinel.Config{
				Interval:       sentinelInterval,
				ExpectedStatus: sentinelExpect,
				FailKeyword:    sentinelKeyword,
			}
			mon := sentinel.New(engine.Pipeline, cfg)
			if err := mon.Start(defs[0]); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			mon.Stop()

			checks := mon.Checks()
			failed := 0
			for _, c := range checks {
				if c.Failed {
					failed++
				}
			}
			fmt.Fprintf(os.Stdout, "\n%d checks, %d failed\n", len(checks), failed)

			if sentinelExport != "" {
				f, err := os.Create(sentinelExport)
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				defer f.Close()
				if err := mon.ExportCSV(f); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "history written to %s\n", sentinelExport)
			}
			return nil
		},
	}
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and check for a newer release",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("postdad %s\n", version)
		available, latest, url, err := upstream.CheckForUpdate(cmd.Context(), version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "update check failed: %v\n", err)
			return nil
		}
		if available {
			fmt.Printf("newer release available: %s (%s)\n", latest, url)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.CollectionsDir, "collections", "", "collections directory (default ~/.postdad/collections)")
	rootCmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "environments file (default ~/.postdad/environments.hcl)")
	rootCmd.PersistentFlags().StringVar(&opts.EnvName, "env", "", "environment to activate")
	rootCmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "", "output format: text, json or yaml")

	runCmd.Flags().StringVarP(&runRequest, "request", "r", "", "run a single request by name")

	stressCmd.Flags().StringVarP(&stressRequest, "request", "r", "", "request to load test")
	stressCmd.Flags().IntVarP(&stressWorkers, "workers", "w", 10, "virtual workers")
	stressCmd.Flags().DurationVarP(&stressDuration, "duration", "d", 30*time.Second, "run duration")

	sentinelCmd.Flags().StringVarP(&sentinelRequest, "request", "r", "", "request to monitor")
	sentinelCmd.Flags().DurationVarP(&sentinelInterval, "interval", "i", 30*time.Second, "check interval")
	sentinelCmd.Flags().StringVar(&sentinelKeyword, "fail-keyword", "", "classify failed when the body contains this keyword")
	sentinelCmd.Flags().IntVar(&sentinelExpect, "expect", 200, "expected status code")
	sentinelCmd.Flags().StringVar(&sentinelExport, "export", "", "write check history to a CSV file on exit")

	rootCmd.AddCommand(runCmd, stressCmd, sentinelCmd, versionCmd)
}
