package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rockhoundapp/rockhound/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage collecting sessions",
}

var (
	startName     string
	startLocation string
)

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new session (ends any active one)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		mgr := session.NewManager(a.store, a.photos, a.logger("session"))
		sess, err := mgr.Start(ctx, startName, startLocation)
		if err != nil {
			return err
		}
		fmt.Printf("Started session %s (%s)\n", sess.ID, sess.Name)
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [session-id]",
	Short: "End a session (defaults to the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		mgr := session.NewManager(a.store, a.photos, a.logger("session"))

		id := ""
		if len(args) == 1 {
			id = args[0]
		} else {
			active, err := mgr.Active(ctx)
			if err != nil {
				return err
			}
			if active == nil {
				fmt.Println("No active session.")
				return nil
			}
			id = active.ID
		}

		sess, err := mgr.End(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("Ended session %s (%d find(s))\n", sess.ID, len(sess.Finds))
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		sessions, err := a.store.ListSessions(ctx)
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions.")
			return nil
		}
		for _, s := range sessions {
			start := time.UnixMilli(s.StartTime).Format("2006-01-02 15:04")
			fmt.Printf("%-26s %-24s %-8s %3d find(s)  %s\n",
				s.ID, s.Name, s.Status, len(s.Finds), start)
		}
		return nil
	},
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <name>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		mgr := session.NewManager(a.store, a.photos, a.logger("session"))
		if err := mgr.Rename(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Renamed session %s\n", args[0])
		return nil
	},
}

var sessionLinkCmd = &cobra.Command{
	Use:   "link <find-id> <session-id>",
	Short: "Link a find to a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		mgr := session.NewManager(a.store, a.photos, a.logger("session"))
		if err := mgr.Link(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Linked %s to %s\n", args[0], args[1])
		return nil
	},
}

var sessionUnlinkCmd = &cobra.Command{
	Use:   "unlink <find-id> <session-id>",
	Short: "Remove a find from a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		mgr := session.NewManager(a.store, a.photos, a.logger("session"))
		if err := mgr.Unlink(ctx, args[0], args[1], true); err != nil {
			return err
		}
		fmt.Printf("Unlinked %s from %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	sessionStartCmd.Flags().StringVar(&startName, "name", "", "session name (default from time of day)")
	sessionStartCmd.Flags().StringVar(&startLocation, "location", "", "location name")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionRenameCmd)
	sessionCmd.AddCommand(sessionLinkCmd)
	sessionCmd.AddCommand(sessionUnlinkCmd)
}
