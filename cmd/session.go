package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bnema/editor-relay/internal/domain"
	"github.com/spf13/cobra"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create, read, update and delete relay sessions",
	}

	cmd.AddCommand(
		newSessionCreateCmd(a),
		newSessionGetCmd(a),
		newSessionPushCmd(a),
		newSessionWaitCmd(a),
		newSessionDeleteCmd(a),
	)

	return cmd
}

func newSessionCreateCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session from a file or stdin and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := readContent(cmd, file)
			if err != nil {
				return err
			}

			id, err := a.client.Create(cmd.Context(), content)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, id); err != nil {
				return err
			}
			if link := a.cfg.Client.EditorLink(string(id)); link != "" {
				_, err = fmt.Fprintf(out, "editor: %s\n", link)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read content from file instead of stdin")

	return cmd
}

func newSessionGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <session-id>",
		Short: "Print the content a session was created with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseSessionID(args[0])
			if err != nil {
				return err
			}

			content, err := a.client.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	}
}

func newSessionPushCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "push <session-id>",
		Short: "Send an edit to a session, waking its waiter if there is one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseSessionID(args[0])
			if err != nil {
				return err
			}

			content, err := readContent(cmd, file)
			if err != nil {
				return err
			}

			if err := a.client.Push(cmd.Context(), id, content); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read content from file instead of stdin")

	return cmd
}

func newSessionWaitCmd(a *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "wait <session-id>",
		Short: "Block until the next edit arrives and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseSessionID(args[0])
			if err != nil {
				return err
			}

			var content string
			if once {
				content, err = a.client.WaitOnce(cmd.Context(), id)
				if errors.Is(err, domain.ErrNoContentYet) {
					_, err = fmt.Fprintln(cmd.ErrOrStderr(), "no edit yet")
					return err
				}
			} else {
				err = runSpinner(cmd.Context(), cmd.ErrOrStderr(), fmt.Sprintf("Waiting for an edit to %s...", id), func(ctx context.Context) error {
					var waitErr error
					content, waitErr = a.client.WaitForEdit(ctx, id, nil)
					return waitErr
				})
			}
			if err != nil {
				return err
			}

			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Return after a single long poll even if no edit arrived")

	return cmd
}

func newSessionDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its stored content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseSessionID(args[0])
			if err != nil {
				return err
			}

			if err := a.client.Delete(cmd.Context(), id); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Deleted")
			return err
		},
	}
}

func readContent(cmd *cobra.Command, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
