package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swayback/swayback/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List named layouts and database snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		names, err := store.NewLibrary(cfg.LayoutsDir).List()
		if err != nil {
			return err
		}
		fmt.Printf("named layouts (%s):\n", cfg.LayoutsDir)
		if len(names) == 0 {
			fmt.Println("  (none)")
		}
		for _, name := range names {
			fmt.Printf("  %s\n", name)
		}

		db, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		fmt.Printf("snapshot database (%s):\n", cfg.DatabasePath)
		workspaces := db.Workspaces()
		if len(workspaces) == 0 {
			fmt.Println("  (empty)")
		}
		for _, workspace := range workspaces {
			for _, signature := range db.Signatures(workspace) {
				fmt.Printf("  workspace %s  %s\n", workspace, signature[:12])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
