package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cameramodules/internal/resolution"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func camerasCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "List cameras",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup := newService()
			defer cleanup()

			cams := svc.Cameras()
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, cams)
			}
			if len(cams) == 0 {
				fmt.Fprintln(out, "No cameras found")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSOURCE\tDEVICE\tFORMATS")
			for _, c := range cams {
				dev := c.DevicePath
				if dev == "" {
					dev = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Source, dev, strings.Join(c.PixelFormats, ","))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func sizesCmd() *cobra.Command {
	var useCase string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sizes <camera>",
		Short: "Print the supported sizes for a use case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := resolution.ParseUseCase(useCase)
			if err != nil {
				return err
			}

			svc, cleanup := newService()
			defer cleanup()

			sizes := svc.Sizes(args[0], uc)
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, sizes)
			}
			if len(sizes) == 0 {
				fmt.Fprintf(out, "No %s sizes reported for %s\n", uc, args[0])
				return nil
			}
			for _, s := range sizes {
				fmt.Fprintln(out, s)
			}
			return nil
		},
	}

	addUseCaseFlag(cmd, &useCase, "preview")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func selectCmd() *cobra.Command {
	var useCase string
	var width, height int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "select <camera>",
		Short: "Pick the supported size closest to a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := resolution.ParseUseCase(useCase)
			if err != nil {
				return err
			}
			target, err := targetFromFlags(cmd, width, height)
			if err != nil {
				return err
			}

			svc, cleanup := newService()
			defer cleanup()

			sel, err := svc.Select(args[0], uc, target)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, sel)
			}
			if sel.Fallback {
				fmt.Fprintf(out, "%s (no supported sizes, using target)\n", sel.Chosen)
				return nil
			}
			fmt.Fprintf(out, "%s (target %s, distance %d, %d candidates)\n",
				sel.Chosen, sel.Target, sel.Distance, len(sel.Catalog))
			return nil
		},
	}

	addUseCaseFlag(cmd, &useCase, "preview")
	addTargetFlags(cmd, &width, &height)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
