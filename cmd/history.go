package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/depotscan/internal/utils"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded depot scans",
	Run: func(cmd *cobra.Command, args []string) {
		if DB == nil {
			utils.Die("No database configured", fmt.Errorf("use --db or POSTGRES_HOST"), nil)
		}

		scans, err := DB.ListScans(cmd.Context(), historyLimit)
		if err != nil {
			utils.Die("Failed to list scans", err, nil)
		}

		if len(scans) == 0 {
			fmt.Println("No scans recorded.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSCREENSHOT\tITEMS\tTOTAL\tSCANNED")
		fmt.Fprintln(w, "--\t----------\t-----\t-----\t-------")

		for _, sc := range scans {
			total := 0
			for _, it := range sc.Items {
				total += it.Count
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				sc.ID.String()[:8], filepath.Base(sc.ImagePath), len(sc.Items), total,
				sc.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of scans to show")
	rootCmd.AddCommand(historyCmd)
}
