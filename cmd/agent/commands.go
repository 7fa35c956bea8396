package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"timetrack/internal/agent"
	"timetrack/internal/clientconfig"
	"timetrack/internal/idle"
	"timetrack/internal/model"
)

var (
	flagEmail       string
	flagPassword    string
	flagDescription string
	flagProject     string
	flagTask        string
)

var rootCmd = &cobra.Command{
	Use:   "timetrack",
	Short: "Command line client for the timetrack server",
	Long: `timetrack is a desktop client for the timetrack backend.

It keeps a live view of your running timer in sync across devices
over a realtime connection, falls back to polling when the network
is unreliable, and stops your timer for you after a period of
inactivity.

  timetrack login --email you@example.com     Authenticate and save a token
  timetrack start "write report"              Start a timer
  timetrack stop                              Stop the running timer
  timetrack status                            Show the running timer
  timetrack watch                             Live synced view`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the server and save the token",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv()
		if err != nil {
			return err
		}
		password := flagPassword
		if password == "" {
			fmt.Fprint(cmd.OutOrStdout(), "Password: ")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if scanner.Scan() {
				password = scanner.Text()
			}
		}
		user, err := env.api.Login(cmd.Context(), flagEmail, password)
		if err != nil {
			return err
		}
		if err := env.creds.Set(env.api.Token()); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Email)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start [description]",
	Short: "Start a timer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv()
		if err != nil {
			return err
		}
		description := flagDescription
		if len(args) > 0 {
			description = args[0]
		}
		entry, err := env.api.Start(cmd.Context(), description, optional(flagProject), optional(flagTask))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started %s at %s (rate %.2f/h)\n",
			describe(entry), entry.StartTime.Local().Format("15:04:05"), entry.HourlyRateSnapshot)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv()
		if err != nil {
			return err
		}
		current, err := env.api.Current(cmd.Context())
		if err != nil {
			return err
		}
		if current == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No timer running.")
			return nil
		}
		entry, err := env.api.Stop(cmd.Context(), current.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s after %s (earned %.2f)\n",
			describe(entry), formatSeconds(entry.DurationSeconds), entry.Earnings(time.Now()))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv()
		if err != nil {
			return err
		}
		entry, err := env.api.Current(cmd.Context())
		if err != nil {
			// Offline: fall back to the last synced snapshot.
			if agent.IsTransient(err) {
				if snap, _ := env.snapshots.Load(); snap != nil && snap.CurrentEntry != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "(offline, as of %s)\n", snap.SavedAt.Local().Format("15:04:05"))
					printEntry(cmd, snap.CurrentEntry)
					return nil
				}
			}
			return err
		}
		if entry == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No timer running.")
		} else {
			printEntry(cmd, entry)
		}
		saveSnapshot(cmd.Context(), env, entry)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of the running timer, synced across devices",
	Long: `Watch connects to the server's realtime feed and keeps the timer
display in sync with every other device on the account. Typing a line
counts as activity; after the configured idle timeout without input
the running timer is stopped automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv()
		if err != nil {
			return err
		}
		return runWatch(cmd, env)
	},
}

func init() {
	loginCmd.Flags().StringVar(&flagEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&flagPassword, "password", "", "account password (prompted if omitted)")
	_ = loginCmd.MarkFlagRequired("email")

	startCmd.Flags().StringVarP(&flagDescription, "description", "d", "", "what you are working on")
	startCmd.Flags().StringVar(&flagProject, "project", "", "project id")
	startCmd.Flags().StringVar(&flagTask, "task", "", "task id")

	rootCmd.AddCommand(loginCmd, startCmd, stopCmd, statusCmd, watchCmd)
}

type clientEnv struct {
	cfg       clientconfig.Config
	creds     *agent.FileCredentialStore
	snapshots *agent.SnapshotStore
	api       *agent.APIClient
}

func loadEnv() (*clientEnv, error) {
	dir, err := clientconfig.Dir()
	if err != nil {
		return nil, err
	}
	cfg, err := clientconfig.Load(filepath.Join(dir, clientconfig.ConfigFile))
	if err != nil {
		return nil, err
	}
	creds := agent.NewFileCredentialStore(filepath.Join(dir, clientconfig.TokenFile))
	token, err := creds.Get()
	if err != nil {
		return nil, err
	}
	return &clientEnv{
		cfg:       cfg,
		creds:     creds,
		snapshots: agent.NewSnapshotStore(filepath.Join(dir, clientconfig.SnapshotFile)),
		api:       agent.NewAPIClient(cfg.ServerURL, token),
	}, nil
}

func runWatch(cmd *cobra.Command, env *clientEnv) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The server-stored setting wins; the TOML value only covers starting
	// offline before the first fetch succeeds.
	idleTimeout := env.cfg.IdleTimeout()
	if me, err := env.api.Me(ctx); err == nil && me.IdleTimeoutSeconds > 0 {
		idleTimeout = time.Duration(me.IdleTimeoutSeconds) * time.Second
	}

	agentCfg := agent.DefaultConfig()
	agentCfg.ResyncInterval = env.cfg.ResyncInterval()
	agentCfg.AwayThreshold = idleTimeout

	source := agent.NewWebsocketSource(env.cfg.ServerURL, env.api.Token)
	a := agent.New(env.api, source, agentCfg)
	defer a.Close()

	// Render the cached state immediately; the first sync overwrites it.
	if snap, _ := env.snapshots.Load(); snap != nil && snap.CurrentEntry != nil {
		printEntry(cmd, snap.CurrentEntry)
	}

	guard := idle.NewGuard(idleTimeout,
		func() bool { return a.Belief().IsRunning },
		func(ctx context.Context, idleFor time.Duration) {
			if belief := a.Belief(); belief.Entry != nil {
				a.StopForIdle(ctx, belief.Entry.ID, idleFor)
			}
		},
	)

	go a.Run(ctx)
	go guard.Run(ctx, time.Second)
	go readActivity(ctx, cmd, guard)

	var lastSaved string
	for {
		select {
		case update := <-a.Updates():
			renderUpdate(cmd, update)
			// A settings change made on another device is picked up the
			// next time the connection comes up.
			if update.Kind == agent.UpdateConn && update.Conn == agent.StateConnected {
				if me, err := env.api.Me(ctx); err == nil && me.IdleTimeoutSeconds > 0 {
					guard.SetThreshold(time.Duration(me.IdleTimeoutSeconds) * time.Second)
				}
			}
			// Persist on identity changes only, not on every display tick.
			if update.Kind == agent.UpdateSnapshot {
				if key := snapshotKey(update.Belief.Entry); key != lastSaved {
					lastSaved = key
					saveSnapshot(ctx, env, update.Belief.Entry)
				}
			}
		case <-ctx.Done():
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		}
	}
}

func snapshotKey(entry *model.TimeEntry) string {
	if entry == nil {
		return ""
	}
	return fmt.Sprintf("%s/%t/%s", entry.ID, entry.IsRunning, entry.UpdatedAt.Format(time.RFC3339Nano))
}

// readActivity treats every line on stdin as user activity.
func readActivity(ctx context.Context, cmd *cobra.Command, guard *idle.Guard) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		guard.Activity()
	}
}

func renderUpdate(cmd *cobra.Command, update agent.Update) {
	out := cmd.OutOrStdout()
	switch update.Kind {
	case agent.UpdateConn:
		fmt.Fprintf(out, "\r\033[K[%s]\n", update.Conn)
	case agent.UpdateNotice:
		fmt.Fprintf(out, "\r\033[K%s\n", update.Notice)
	default:
		belief := update.Belief
		if !belief.IsRunning || belief.Entry == nil {
			fmt.Fprint(out, "\r\033[Kidle")
			return
		}
		fmt.Fprintf(out, "\r\033[K%s  %s  %.2f",
			describe(belief.Entry), formatSeconds(belief.ElapsedSeconds), belief.Earnings())
	}
}

func saveSnapshot(ctx context.Context, env *clientEnv, entry *model.TimeEntry) {
	snap := agent.Snapshot{CurrentEntry: entry}
	if recent, err := env.api.RecentEntries(ctx, 20); err == nil {
		snap.RecentEntries = recent
	}
	if projects, err := env.api.Projects(ctx); err == nil {
		snap.Projects = projects
	}
	_ = env.snapshots.Save(snap)
}

func printEntry(cmd *cobra.Command, entry *model.TimeEntry) {
	now := time.Now()
	fmt.Fprintf(cmd.OutOrStdout(), "%s  running for %s  earned %.2f\n",
		describe(entry), formatSeconds(entry.Elapsed(now)), entry.Earnings(now))
}

func describe(entry *model.TimeEntry) string {
	if entry.Description != "" {
		return entry.Description
	}
	return "(no description)"
}

func formatSeconds(total int) string {
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
