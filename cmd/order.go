package cmd

import (
	"fmt"

	"github.com/andresmejia3/depotscan/internal/catalog"
	"github.com/andresmejia3/depotscan/internal/utils"
	"github.com/spf13/cobra"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the item order table passed to the recognizer",
	Run: func(cmd *cobra.Command, args []string) {
		order, err := catalog.Load(Cfg.ItemOrderPath)
		if err != nil {
			utils.Die("Failed to load item order", err, nil)
		}
		for i, id := range order.IDs() {
			fmt.Printf("%4d  %s\n", i, id)
		}
	},
}

func init() {
	rootCmd.AddCommand(orderCmd)
}
