package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swayback/swayback/internal/control/client"
)

var ctlWorkspace string

var ctlCmd = &cobra.Command{
	Use:   "ctl <status|save|restore|reload>",
	Short: "Talk to a running watch daemon",
	Long: `Send a request to a running "swayback watch" daemon over its control
socket. The socket location follows --socket, SWAYBACK_CONTROL_SOCKET,
then $XDG_RUNTIME_DIR/swayback/control.sock.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"status", "save", "restore", "reload"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(flagSocket)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		switch args[0] {
		case "status":
			status, err := c.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("saves: %d\nrestores: %d\nfailures: %d\n",
				status.Saves, status.Restores, status.Failures)
			return nil
		case "save":
			if err := c.Save(ctx, ctlWorkspace); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		case "restore":
			if err := c.Restore(ctx, ctlWorkspace); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		case "reload":
			if err := c.Reload(ctx); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		default:
			return fmt.Errorf("unknown action %q", args[0])
		}
	},
}

func init() {
	ctlCmd.Flags().StringVar(&ctlWorkspace, "workspace", "", "workspace for save/restore (default: focused)")
	rootCmd.AddCommand(ctlCmd)
}
