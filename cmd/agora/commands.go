package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agora/internal/core"
	"agora/internal/exports"
	"agora/internal/manifestfile"
)

func newSpacesCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "spaces",
		Short: "List installed participatory spaces",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tROUTE\tCONTEXTS\tEXPORTS")
			for _, m := range a.service.Spaces() {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name(), orDash(m.Route()), list(m.ContextKeys()), list(m.ExportNames()))
			}
			return w.Flush()
		}),
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Parse and validate manifest files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, path := range args {
				if err := validateFile(cmd.Context(), path); err != nil {
					errs = append(errs, err)
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s\n", path)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", path)
			}
			return errors.Join(errs...)
		},
	}
}

func validateFile(ctx context.Context, path string) error {
	decls, err := manifestfile.LoadFiles(ctx, path)
	if err != nil {
		return err
	}
	_, err = manifestfile.Manifests(decls, core.Environment{})
	return err
}

func newSeedCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [SPACE...]",
		Short: "Create seed data for every space, or only the named ones",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 {
				if err := a.service.SeedAll(ctx); err != nil {
					return err
				}
			}
			for _, name := range args {
				if err := a.service.Seed(ctx, name); err != nil {
					return err
				}
			}
			total := 0
			for _, org := range a.organizations() {
				records, err := a.service.ParticipatorySpaces(ctx, org)
				if err != nil {
					return err
				}
				total += len(records)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d spaces across %d organizations\n", total, len(a.cfg.Organizations))
			return err
		}),
	}
}

type exportFlags struct {
	org         string
	format      string
	requestedBy string
	queue       bool
	timeout     time.Duration
}

func newExportCmd(withApp appRunner) *cobra.Command {
	flags := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export SPACE EXPORT",
		Short: "Render an export into the blob store",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			req := exports.Request{
				Space:        args[0],
				Export:       args[1],
				Organization: a.organization(flags.org),
				Format:       core.ExportFormat(flags.format),
				RequestedBy:  flags.requestedBy,
			}
			var artifacts []exports.Artifact
			var err error
			if flags.queue {
				artifacts, err = runQueued(cmd.Context(), a, req, flags.timeout)
			} else {
				artifacts, err = a.runner().Run(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			return printArtifacts(cmd, artifacts)
		}),
	}
	cmd.Flags().StringVar(&flags.org, "org", "", "organization id (defaults to the first configured)")
	cmd.Flags().StringVar(&flags.format, "format", "json", "json or csv")
	cmd.Flags().StringVar(&flags.requestedBy, "requested-by", "cli", "recorded in artifact metadata")
	cmd.Flags().BoolVar(&flags.queue, "queue", false, "run through the export worker")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", time.Minute, "how long to wait for a queued job")
	return cmd
}

func newOpenDataCmd(withApp appRunner) *cobra.Command {
	var org, format string
	cmd := &cobra.Command{
		Use:   "open-data",
		Short: "Render every export flagged for open data",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			artifacts, err := a.runner().OpenData(cmd.Context(), a.organization(org), core.ExportFormat(format))
			if err != nil {
				return err
			}
			return printArtifacts(cmd, artifacts)
		}),
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id (defaults to the first configured)")
	cmd.Flags().StringVar(&format, "format", "json", "json or csv")
	return cmd
}

func newArtifactsCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts SPACE [EXPORT]",
		Short: "List stored export artifacts, oldest first",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			artifacts, err := a.runner().Artifacts(cmd.Context(), args[0], optionalArg(args, 1))
			if err != nil {
				return err
			}
			return printArtifacts(cmd, artifacts)
		}),
	}
}

func newFetchCmd(withApp appRunner) *cobra.Command {
	var out string
	var info bool
	cmd := &cobra.Command{
		Use:   "fetch KEY",
		Short: "Write a stored export artifact to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if info {
				artifact, err := a.runner().Artifact(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printArtifacts(cmd, []exports.Artifact{artifact})
			}
			_, body, err := a.runner().Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = body.Close() }()
			return copyTo(cmd.OutOrStdout(), out, body)
		}),
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&info, "info", false, "print artifact details instead of the body")
	return cmd
}

func newPruneCmd(withApp appRunner) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune SPACE [EXPORT]",
		Short: "Delete all but the newest artifacts of each export",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			removed, err := a.runner().Prune(cmd.Context(), args[0], optionalArg(args, 1), keep)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d artifacts\n", len(removed))
			return err
		}),
	}
	cmd.Flags().IntVar(&keep, "keep", 5, "artifacts to keep per export")
	return cmd
}

func copyTo(stdout io.Writer, path string, body io.Reader) (err error) {
	if path == "" {
		_, err = io.Copy(stdout, body)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(f, body)
	return err
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

// runQueued submits req to a worker sized from config and waits for it.
func runQueued(ctx context.Context, a *app, req exports.Request, timeout time.Duration) ([]exports.Artifact, error) {
	worker := exports.NewWorker(a.runner(), a.cfg.Exports.QueueSize)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	job, err := worker.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("export job %s: %w", job.ID, ctx.Err())
		case <-ticker.C:
		}
		current, _ := worker.Job(job.ID)
		switch current.Status {
		case exports.StatusSucceeded:
			return current.Artifacts, nil
		case exports.StatusFailed:
			return nil, fmt.Errorf("export job %s: %s", job.ID, current.Error)
		}
	}
}

func (a *app) organization(id string) core.Organization {
	if id == "" && len(a.cfg.Organizations) > 0 {
		id = a.cfg.Organizations[0]
	}
	return core.Organization{ID: id}
}

func printArtifacts(cmd *cobra.Command, artifacts []exports.Artifact) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "SPACE\tEXPORT\tROWS\tKEY")
	for _, art := range artifacts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", art.Space, art.Export, art.Rows, art.Key)
	}
	return w.Flush()
}

func list(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
