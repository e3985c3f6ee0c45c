package rdpso

import (
	"fmt"

	"github.com/spf13/cobra"

	"rdpso/simulator/internal/simulator"
)

func newConfigCmd() *cobra.Command {
	var path, format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the default or a validated simulation config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			//1.- Start from the defaults unless a file is supplied; loading validates it.
			cfg := simulator.DefaultSimConfig()
			if path != "" {
				loaded, err := simulator.LoadFile(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			var (
				rendered string
				err      error
			)
			//2.- Render in the requested format.
			switch format {

			case "json":
				rendered, err = cfg.MarshalIndentJSON()
			case "toml":
				rendered, err = cfg.MarshalTOML()
			default:
				return fmt.Errorf("unknown format %q (want json or toml)", format)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "config file to load and validate")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or toml")
	return cmd
}
