package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxnote/internal/config"
	"github.com/MrWong99/voxnote/internal/notes"
	"github.com/MrWong99/voxnote/internal/storage"
)

// withStore opens the configured storage, runs fn and closes it again.
func withStore(ctx context.Context, fn func(*notes.Store) error) error {
	cfg := configFrom(ctx)
	reg := config.NewRegistry()
	registerBuiltins(reg)

	kv, err := reg.CreateStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()
	return fn(notes.NewStore(kv, notes.WithKey(cfg.Storage.Key)))
}

func printNotes(w io.Writer, col notes.Collection, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(col)
	}
	for _, n := range col {
		fmt.Fprintf(w, "%s  %s  %s\n", n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"),
			strings.ReplaceAll(n.Content, "\n", " / "))
	}
	return nil
}

func newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(s *notes.Store) error {
				col, err := s.Load(cmd.Context())
				if err != nil {
					return err
				}
				return printNotes(cmd.OutOrStdout(), col, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

func newFindCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "List notes containing query, ignoring case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *notes.Store) error {
				col, err := s.Load(cmd.Context())
				if err != nil {
					return err
				}
				return printNotes(cmd.OutOrStdout(), notes.Filter(col, args[0]), asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>...",
		Short: "Save a new note; arguments are joined with spaces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *notes.Store) error {
				// Unreadable storage is not overwritten by a one-shot add.
				col, err := s.Load(cmd.Context())
				if err != nil {
					return err
				}
				n := notes.NewNote(strings.Join(args, " "))
				if _, err := s.Append(cmd.Context(), col, n); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n.ID)
				return nil
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete the note with the given id",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *notes.Store) error {
				col, err := s.Load(cmd.Context())
				if err != nil {
					return err
				}
				if !col.Contains(args[0]) {
					return fmt.Errorf("note %q: %w", args[0], storage.ErrNotFound)
				}
				_, err = s.Remove(cmd.Context(), col, args[0])
				return err
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the voxnote version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "voxnote", version)
		},
	}
}
