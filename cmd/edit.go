package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bnema/editor-relay/internal/domain"
	"github.com/spf13/cobra"
)

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <file>",
		Short: "Open a file in the web editor and write back the first saved edit",
		Long:  "edit creates a session holding the file's content, prints the session id and editor link, waits for an edit to be saved from the editor, writes it back to the file and deletes the session.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runEdit(ctx, cmd, a, args[0])
		},
	}
}

func runEdit(ctx context.Context, cmd *cobra.Command, a *app, path string) (err error) {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	id, err := a.client.Create(ctx, string(original))
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if deleteErr := a.client.Delete(cleanupCtx, id); deleteErr != nil {
			a.logger.Warn("delete session", "session", string(id), "error", deleteErr)
		}
	}()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "session: %s\n", id)
	if link := a.cfg.Client.EditorLink(string(id)); link != "" {
		_, _ = fmt.Fprintf(out, "editor: %s\n", link)
	}

	var edited string
	label := fmt.Sprintf("Waiting for edits to %s...", filepath.Base(path))
	err = runSpinner(ctx, cmd.ErrOrStderr(), label, func(ctx context.Context) error {
		var waitErr error
		edited, waitErr = a.client.WaitForEdit(ctx, id, func() {
			a.logger.Debug("no edit yet, polling again", "session", string(id))
		})
		return waitErr
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("session %s was deleted before an edit was saved: %w", id, err)
	}
	if err != nil {
		return fmt.Errorf("wait for edit on %s: %w", id, err)
	}

	if err := writeFileAtomic(path, []byte(edited), info.Mode().Perm()); err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "wrote %s\n", path)
	return err
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
