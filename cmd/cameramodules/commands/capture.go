package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func captureCmd() *cobra.Command {
	var width, height int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "capture <camera>",
		Short: "Save one JPEG still from a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := targetFromFlags(cmd, width, height)
			if err != nil {
				return err
			}

			svc, cleanup := newService()
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := svc.Capture(ctx, args[0], target)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "Saved %s (%s, %d bytes)\n", res.Path, res.Size, res.Bytes)
			return nil
		},
	}

	addTargetFlags(cmd, &width, &height)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
