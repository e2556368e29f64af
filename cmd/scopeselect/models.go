package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List supported device models",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, m := range a.registry.Models() {
				loader := "-"
				if m.NeedsFirmware() {
					loader = fmt.Sprintf("%04x:%04x", m.LoaderVendorID, m.LoaderProductID)
				}
				fw := m.Firmware
				if fw == "" {
					fw = "-"
				}
				rows = append(rows, []string{
					m.Name,
					string(m.Transport),
					fmt.Sprintf("%04x:%04x", m.VendorID, m.ProductID),
					loader,
					fw,
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"MODEL", "TRANSPORT", "ID", "LOADER ID", "FIRMWARE"}, rows)
		},
	}
}
