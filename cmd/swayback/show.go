package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/swayback/swayback/internal/layout"
	"github.com/swayback/swayback/internal/store"
)

var (
	showName      string
	showWorkspace string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a layout record as JSON",
	Long: `Print a layout record as indented JSON.

With --name the named layout file is shown; otherwise the focused (or
named) workspace's live arrangement is captured and shown. The output is
the same format "save" writes, suitable for editing by hand.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec layout.Record
		if showName != "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rec, err = store.NewLibrary(cfg.LayoutsDir).Load(showName)
			if err != nil {
				return err
			}
		} else {
			client, err := newManagerClient()
			if err != nil {
				return err
			}
			live, err := captureWorkspace(cmd.Context(), client, showWorkspace)
			if err != nil {
				return err
			}
			rec = live.Record()
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}

func init() {
	showCmd.Flags().StringVar(&showName, "name", "", "show a named layout instead of the live workspace")
	showCmd.Flags().StringVar(&showWorkspace, "workspace", "", "workspace to capture (default: focused)")
	rootCmd.AddCommand(showCmd)
}
