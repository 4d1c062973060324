package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rewearify/rewearify/internal/auth"
)

func newNotificationsCmd() *cobra.Command {
	var unreadOnly bool
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notifs"},
		Short:   "List notifications for the signed-in identity",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			if rt.service.Current() == nil {
				return auth.ErrNoActiveSession
			}
			ledger := rt.service.Ledger()
			items := ledger.Items()
			if len(items) == 0 {
				rt.info("No notifications")
				return nil
			}
			rows := [][]string{{"ID", "TYPE", "TITLE", "WHEN", "READ"}}
			for _, n := range items {
				if unreadOnly && n.Read {
					continue
				}
				read := "no"
				if n.Read {
					read = "yes"
				}
				rows = append(rows, []string{n.ID, n.Type, n.Title, n.Timestamp.Local().Format(time.DateTime), read})
			}
			if err := rt.table(rows); err != nil {
				return err
			}
			rt.info("%d unread", ledger.UnreadCount())
			return nil
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only list unread notifications")
	return cmd
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			changed, err := rt.service.MarkRead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if changed {
				rt.success("Marked %s as read", args[0])
			} else {
				rt.info("%s was already read or does not exist", args[0])
			}
			rt.info("%d unread", rt.service.Ledger().UnreadCount())
			return nil
		},
	}
}
