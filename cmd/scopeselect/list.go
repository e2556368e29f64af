package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var noHID bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Scan once and list attached supported devices",
		Long: "Scan every bus once and print what was found. Devices waiting for firmware\n" +
			"are listed but not touched; run select to load it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			buses, err := a.buses(a.cfg.FirmwareDir, a.cfg.HIDEnabled() && !noHID)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, bus := range buses {
				obs, err := bus.Scan()
				if err != nil {
					a.logger.Warn("scan failed", slog.String("bus", bus.Name()), slog.Any("error", err))
					continue
				}
				for _, o := range obs {
					state := "ready"
					switch {
					case o.Err != nil:
						state = "failed: " + o.Err.Error()
					case o.NeedsFirmware:
						state = "needs firmware"
					}
					rows = append(rows, []string{string(o.Key), o.Model.Name, bus.Name(), state})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no supported devices found")
				return nil
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "MODEL", "BUS", "STATE"}, rows)
		},
	}

	cmd.Flags().BoolVar(&noHID, "no-hid", false, "Do not look for HID devices")
	return cmd
}
