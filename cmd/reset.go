package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/depotscan/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetCache bool
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset local state (package cache, scan history)",
	Long:  "Clears local data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetCache {
			resetDB = DB != nil
			resetCache = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetCache {
			ns := Cfg.Cache.Namespace
			if resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to clear the %q cache namespace?", ns)) {
				fmt.Println("🗑️  Clearing package cache...")
				if err := Local.Clear(cmd.Context(), ns); err != nil {
					utils.Die("Failed to clear package cache", err, nil)
				}
			}
		}

		if resetDB {
			if DB == nil {
				utils.Die("No database configured", fmt.Errorf("use --db or POSTGRES_HOST"), nil)
			}
			if resetYes || confirm(reader, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		fmt.Println("✨ Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "history", false, "Drop the scan history tables")
	resetCmd.Flags().BoolVar(&resetCache, "cache", false, "Clear the package cache namespace")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
