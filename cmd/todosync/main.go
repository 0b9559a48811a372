package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/erauner12/todosync/internal/app"
	"github.com/erauner12/todosync/internal/config"
	"github.com/erauner12/todosync/internal/localstore"
	"github.com/erauner12/todosync/internal/logging"
	"github.com/erauner12/todosync/internal/syncengine"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	remoteURL  string
	dbPath     string
	jsonOutput bool

	logCloser io.Closer
)

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}

// execute runs the root command and closes the log file whether or not the
// command failed
func execute() error {
	err := rootCmd.Execute()
	if logCloser != nil {
		if cerr := logCloser.Close(); cerr != nil && err == nil {
			err = cerr
		}
		logCloser = nil
	}
	return err
}

// loadConfig reads the config file, then applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if remoteURL != "" {
		cfg.RemoteURL = remoteURL
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

// newApp creates an App from the effective config. The caller must defer a.Close().
func newApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var rootCmd = &cobra.Command{
	Use:          "todosync",
	Short:        "Offline-first todo list with a durable sync queue",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		closer, err := logging.Setup(logging.Options{
			Service: "todosync",
			Level:   cfg.LogLevel,
			Env:     cfg.Env,
			File:    cfg.LogFile,
		})
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}
		logCloser = closer
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a todo locally and queue it for sync",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Add(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rec)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", rec.ID, rec.Status)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local todos",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), records)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tTITLE")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Status, r.Title)
		}
		return tw.Flush()
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id> <title>",
	Short: "Retitle a todo and queue the update",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Edit(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s)\n", rec.ID, rec.Status)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a todo and queue the delete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func printOutcome(w io.Writer, out syncengine.Outcome) {
	fmt.Fprintf(w, "Pushed %d, failed %d, dead-lettered %d, remaining %d\n",
		out.Push.Synced, out.Push.Failed, out.Push.DeadLettered, out.Push.Remaining)
	fmt.Fprintf(w, "Pulled %d of %d (skipped %d)\n", out.Pull.Applied, out.Pull.Fetched, out.Pull.Skipped)
	if out.Err != nil {
		fmt.Fprintf(w, "Sync error: %v\n", out.Err)
	}
	if out.Push.Err != nil {
		fmt.Fprintf(w, "Push error: %v\n", out.Push.Err)
	}
	if out.Pull.Err != nil {
		fmt.Fprintf(w, "Pull error: %v\n", out.Pull.Err)
	}
	fmt.Fprintf(w, "Took %s\n", out.Duration.Round(time.Millisecond))
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued changes, then pull the remote set",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := a.Sync(cmd.Context())
		printOutcome(cmd.OutOrStdout(), out)
		if !out.OK() {
			return fmt.Errorf("sync incomplete")
		}
		return nil
	},
}

var purgeQueue bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show pending queue entries and dead letters",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if purgeQueue {
			n, err := a.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d acknowledged entries\n", n)
		}

		q, err := a.Queue(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), q)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tSTATE\tOP\tPAYLOAD\tERROR")
		for _, group := range [][]localstore.QueueEntry{q.Pending, q.Dead} {
			for _, e := range group {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Sequence, e.State, e.Operation, e.Payload, e.LastError)
			}
		}
		return tw.Flush()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync automatically whenever the remote becomes reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		states, unsubscribe := a.Subscribe()
		defer unsubscribe()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case syncing := <-states:
					log.Info().Bool("syncing", syncing).Msg("sync state")
				}
			}
		}()

		if err := a.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	// No logging setup or config read: the file may not exist yet
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		cfg := config.DefaultConfig()
		if remoteURL != "" {
			cfg.RemoteURL = remoteURL
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), cfg)
		}
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "remote endpoint URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "local database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON output")

	queueCmd.Flags().BoolVar(&purgeQueue, "purge", false, "delete acknowledged entries first")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(addCmd, listCmd, editCmd, rmCmd, syncCmd, queueCmd, watchCmd, configCmd)
}
