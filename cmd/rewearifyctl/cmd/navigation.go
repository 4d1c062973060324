package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewearify/rewearify/internal/dashboard"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the dashboard for the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			view := dashboard.For(rt.service.Current())
			fmt.Fprintln(rt.out, view.Title)
			if view.Message != "" {
				fmt.Fprintln(rt.out, view.Message)
			}
			if !view.Recognized() || len(view.Actions) == 0 {
				return nil
			}
			rows := [][]string{{"ACTION", "PATH"}}
			for _, a := range view.Actions {
				rows = append(rows, []string{a.Label, a.Path})
			}
			return rt.table(rows)
		},
	}
}

func newCanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can <path>",
		Short: "Check whether the signed-in identity may open a route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			outcome := rt.gate.Check(rt.service.Current(), args[0])
			if outcome.Allowed() {
				rt.success("%s: %s", args[0], outcome.Decision)
				return nil
			}
			rt.info("%s: %s -> %s", args[0], outcome.Decision, outcome.Location)
			return nil
		},
	}
}
