package cmd

import (
	"github.com/spf13/cobra"
)

func newForgotPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			msg, err := rt.service.ForgotPassword(cmd.Context(), email)
			if err != nil {
				return err
			}
			rt.success("%s", msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newResetPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password <token>",
		Short: "Choose a new password with a reset token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			pw, err := rt.secret(password, "New password")
			if err != nil {
				return err
			}
			if err := rt.service.ResetPassword(cmd.Context(), args[0], pw); err != nil {
				return err
			}
			rt.success("Password updated, you can now log in")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "New password (prompted when empty)")
	return cmd
}
