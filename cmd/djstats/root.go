package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/onnwee/dj-tender/commentary"
	"github.com/onnwee/dj-tender/db"
	"github.com/onnwee/dj-tender/stats"
)

func newRootCommand() *cobra.Command {
	var dsn string

	rootCmd := &cobra.Command{
		Use:           "djstats",
		Short:         "DJ statistics and schema tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("DB_DSN"), "Postgres DSN (defaults to $DB_DSN)")

	open := func() (*sql.DB, error) {
		if dsn == "" {
			return nil, errors.New("no database: pass --dsn or set DB_DSN")
		}
		return db.Connect(dsn)
	}

	rootCmd.AddCommand(newTopCommand(open))
	rootCmd.AddCommand(newPressesCommand(open))
	rootCmd.AddCommand(newMigrateCommand(open))
	rootCmd.AddCommand(newVoicesCommand())
	return rootCmd
}

type opener func() (*sql.DB, error)

func newTopCommand(open opener) *cobra.Command {
	var session, by string
	var limit int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the most played or skipped tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := stats.Kind(by)
			if kind != stats.KindPlay && kind != stats.KindSkip {
				return fmt.Errorf("--by must be %q or %q", stats.KindPlay, stats.KindSkip)
			}
			database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()

			top, err := stats.NewPostgresStore(database).TopTracks(cmd.Context(), session, kind, limit)
			if err != nil {
				return err
			}
			if len(top) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No statistics recorded yet.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTop(top))
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "Limit to one DJ session id")
	cmd.Flags().StringVar(&by, "by", string(stats.KindPlay), "Rank by plays or skips")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Rows to show")
	return cmd
}

func renderTop(top []stats.TopTrack) string {
	rows := make([][]string, 0, len(top))
	for i, t := range top {
		rows = append(rows, []string{strconv.Itoa(i + 1), t.Identifier, strconv.FormatInt(t.Plays, 10), strconv.FormatInt(t.Skips, 10)})
	}
	return renderTable([]string{"#", "Track", "Plays", "Skips"}, rows, []columnAlignment{alignRight, alignLeft, alignRight, alignRight})
}

func newPressesCommand(open opener) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "presses",
		Short: "Show skip-button presses per user for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if session == "" {
				return errors.New("--session is required")
			}
			database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()

			presses, err := stats.NewPostgresStore(database).SkipPresses(cmd.Context(), session)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPresses(presses))
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "DJ session id")
	return cmd
}

func renderPresses(presses map[string]int64) string {
	users := make([]string, 0, len(presses))
	for u := range presses {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if presses[users[i]] != presses[users[j]] {
			return presses[users[i]] > presses[users[j]]
		}
		return users[i] < users[j]
	})
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u, strconv.FormatInt(presses[u], 10)})
	}
	return renderTable([]string{"User", "Presses"}, rows, []columnAlignment{alignLeft, alignRight})
}

func newMigrateCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the statistics schema",
	}
	run := func(fn func(*sql.DB, *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()
			return fn(database, cmd)
		}
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(database *sql.DB, cmd *cobra.Command) error {
			return db.RunMigrations(database)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: run(func(database *sql.DB, cmd *cobra.Command) error {
			return db.MigrateDown(database)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: run(func(database *sql.DB, cmd *cobra.Command) error {
			v, dirty, err := db.GetMigrationVersion(database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
			return nil
		}),
	})
	return cmd
}

func newVoicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List commentary voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderVoices())
			return nil
		},
	}
}

func renderVoices() string {
	keys := commentary.VoiceKeys()
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		v, _ := commentary.LookupVoice(k)
		rows = append(rows, []string{k, v.Locale, v.Quality, v.Model()})
	}
	return renderTable([]string{"Key", "Locale", "Quality", "Model"}, rows, nil)
}
