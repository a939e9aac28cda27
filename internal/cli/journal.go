package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shiwa/bpc-gw/internal/sink/journal"
)

// JournalOptions — флаги команды journal.
type JournalOptions struct {
	*RootOptions
	Database string
	Session  string
}

// NewJournalCommand создаёт команду journal: коды последней (или указанной) загрузки.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Показать коды последней загрузки из журнала SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.Database
			if path == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Sinks.Journal.Path
			}
			ctx := cmd.Context()
			j, err := journal.OpenHistory(ctx, path)
			if err != nil {
				return err
			}
			defer j.Close()

			session := opts.Session
			if session == "" {
				if session, err = j.LastSession(ctx); err != nil {
					return err
				}
				if session == "" {
					return errors.New("journal: no sessions with codes")
				}
			}
			entries, err := j.Entries(ctx, session)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "session %s: %d codes\n", session, len(entries))
			for _, e := range entries {
				if e.Record.Device != "" {
					fmt.Fprintf(w, "%10d  [%s] %s\n", e.Record.Event.Captured, e.Record.Device, e.Record.Text)
					continue
				}
				fmt.Fprintf(w, "%10d  %s\n", e.Record.Event.Captured, e.Record.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "путь к базе журнала (по умолчанию sinks.journal.path)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "идентификатор сессии (по умолчанию последняя)")

	return cmd
}
