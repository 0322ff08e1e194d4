// Package session holds CLI commands for inspecting and seeding game
// sessions directly against the database, without going through the server.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/emiliaharju/whodunit/internal/engine"
	"github.com/emiliaharju/whodunit/internal/sqlite"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "session",
	Title: "Sessions",
}

var sqliteURL string

func init() {
	for _, cmd := range []*cobra.Command{Seed, List, Show} {
		cmd.Flags().StringVar(&sqliteURL, "sqlite-url", "./whodunit.sqlite", "SQLite URL")
	}
}

func openEngine(ctx context.Context) (*engine.Engine, func(), error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := sqlite.NewDatabase(ctx, sqliteURL, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = db.Close()
	}
	return engine.New(db, logger), cleanup, nil
}

// seedParticipants gives a freshly seeded session a predictable seating
// order: birth days step away from the seating reference date in join order.
var seedParticipants = []struct {
	name      string
	birthDate time.Time
}{
	{"Ada", time.Date(1990, time.September, 14, 0, 0, 0, 0, time.UTC)},
	{"Brendan", time.Date(1988, time.September, 12, 0, 0, 0, 0, time.UTC)},
	{"Grace", time.Date(1992, time.September, 9, 0, 0, 0, 0, time.UTC)},
	{"Dennis", time.Date(1985, time.September, 5, 0, 0, 0, 0, time.UTC)},
}

var Seed = &cobra.Command{
	Use:     "seed",
	GroupID: "session",
	Short:   "Create and start a demo session",
	Long:    "Creates a session, joins four participants and starts it",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		e, cleanup, err := openEngine(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "open database: %v\n", err)
			return
		}
		defer cleanup()

		session, err := e.CreateSession(ctx, "Demo evening", 2, 6)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "create session: %v\n", err)
			return
		}
		for _, p := range seedParticipants {
			if _, err = e.Join(ctx, session.ID, p.name, p.birthDate); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "join %s: %v\n", p.name, err)
				return
			}
		}
		if err = e.StartSession(ctx, session.ID, time.Now()); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "start session: %v\n", err)
			return
		}
		fmt.Printf("seeded session %d (code %s)\n", session.ID, session.Code)
	},
}

var List = &cobra.Command{
	Use:     "list",
	GroupID: "session",
	Short:   "List all sessions",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		e, cleanup, err := openEngine(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "open database: %v\n", err)
			return
		}
		defer cleanup()

		sessions, err := e.ListSessions(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "list sessions: %v\n", err)
			return
		}
		for _, s := range sessions {
			fmt.Printf("%d\t%s\t%s\t%d players\n", s.ID, s.Code, s.Status, s.PlayerCount)
		}
	},
}

var Show = &cobra.Command{
	Use:     "show <session-id>",
	GroupID: "session",
	Short:   "Print a session snapshot as JSON",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "parse session id: %v\n", err)
			return
		}
		e, cleanup, err := openEngine(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "open database: %v\n", err)
			return
		}
		defer cleanup()

		snapshot, err := e.Snapshot(ctx, id)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "snapshot: %v\n", err)
			return
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(snapshot); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "encode snapshot: %v\n", err)
		}
	},
}
