package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/documentevaluator/internal/models"
	"github.com/Lllllllleong/documentevaluator/internal/services"
)

type lifecycle interface {
	services.Lifecycle
	ListCompleted(ctx context.Context) ([]string, error)
}

type batchProcessor interface {
	ProcessBatch(ctx context.Context, notes []models.Notification) models.BatchResult
	Close() error
}

// withLifecycle connects to the bucket for the duration of fn.
func (a *app) withLifecycle(ctx context.Context, fn func(l lifecycle) error) error {
	l, closeFn, err := a.lifecycle(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			a.logger.Warn("Failed to close clients", "error", err)
		}
	}()
	return fn(l)
}

func newProcessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "process KEY...",
		Short: "Evaluate pending uploads by object key, as the storage trigger would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := a.evaluator(cmd.Context())
			if err != nil {
				return err
			}
			defer ev.Close()

			notes := make([]models.Notification, len(args))
			for i, key := range args {
				notes[i] = models.Notification{Key: key}
			}
			res := ev.ProcessBatch(cmd.Context(), notes)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if n := res.Count(models.RecordFailed); n > 0 {
				return fmt.Errorf("%d of %d records failed", n, len(notes))
			}
			return nil
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Reserve an evaluation id and print its signed upload URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLifecycle(cmd.Context(), func(l lifecycle) error {
				id, url, err := l.Submit(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), models.UploadResponse{UploadURL: url, EvaluationID: id})
			})
		},
	}
}

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch ID",
		Short: "Print the stored evaluation text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLifecycle(cmd.Context(), func(l lifecycle) error {
				data, err := l.Fetch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(data), "\n"))
				return nil
			})
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "download ID",
		Short: "Print a signed download URL for the original upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLifecycle(cmd.Context(), func(l lifecycle) error {
				url, err := l.DownloadTarget(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an evaluation and its upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLifecycle(cmd.Context(), func(l lifecycle) error {
				if err := l.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the ids of completed evaluations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLifecycle(cmd.Context(), func(l lifecycle) error {
				ids, err := l.ListCompleted(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
