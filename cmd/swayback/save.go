package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swayback/swayback/internal/store"
)

var (
	saveName      string
	saveWorkspace string
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Capture a workspace's layout",
	Long: `Capture the focused (or named) workspace's window arrangement.

Without --name the layout is stored in the snapshot database under the
workspace's window-set signature, where the watch daemon and "restore"
will find it. With --name it is written as a named layout file instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newManagerClient()
		if err != nil {
			return err
		}
		live, err := captureWorkspace(cmd.Context(), client, saveWorkspace)
		if err != nil {
			return err
		}

		if saveName != "" {
			lib := store.NewLibrary(cfg.LayoutsDir)
			if err := lib.Save(saveName, live.Record()); err != nil {
				return err
			}
			fmt.Printf("saved workspace %s as layout %q (%d windows)\n",
				live.Workspace, saveName, len(live.Tree.Leaves()))
			return nil
		}

		db, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		if err := db.Put(live.Workspace, live.Signature(), live.Record()); err != nil {
			return err
		}
		fmt.Printf("saved workspace %s (%d windows, signature %s)\n",
			live.Workspace, len(live.Tree.Leaves()), live.Signature()[:12])
		return nil
	},
}

func init() {
	saveCmd.Flags().StringVar(&saveName, "name", "", "save as a named layout instead of the database")
	saveCmd.Flags().StringVar(&saveWorkspace, "workspace", "", "workspace to capture (default: focused)")
	rootCmd.AddCommand(saveCmd)
}
