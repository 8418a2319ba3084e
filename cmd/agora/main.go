// Command agora hosts the participatory space registry. It installs the
// bundled plugins and any declared manifests, then lists, validates, seeds or
// exports the resulting spaces and manages the stored export artifacts.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

// cli runs the command tree and maps the outcome to an exit code.
func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "agora: %v\n", err)
		return 1
	}
	return 0
}

type rootFlags struct {
	configPath string
	metricsOut string
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "agora",
		Short:         "Participatory space registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.metricsOut, "metrics-out", "", "write Prometheus metrics to this file on exit")

	// withApp boots the host for commands that need installed spaces.
	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) (err error) {
			a, err := bootstrap(cmd.Context(), flags.configPath, logOut)
			if err != nil {
				return err
			}
			defer func() {
				if flags.metricsOut != "" {
					if werr := prometheus.WriteToTextfile(flags.metricsOut, a.metrics); werr != nil && err == nil {
						err = fmt.Errorf("write metrics: %w", werr)
					}
				}
				if cerr := a.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			return run(cmd, a, args)
		}
	}

	root.AddCommand(
		newSpacesCmd(withApp),
		newValidateCmd(),
		newSeedCmd(withApp),
		newExportCmd(withApp),
		newOpenDataCmd(withApp),
		newArtifactsCmd(withApp),
		newFetchCmd(withApp),
		newPruneCmd(withApp),
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error
