package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rewearify/rewearify/internal/auth"
	"github.com/rewearify/rewearify/internal/identity"
)

func newLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			pw, err := rt.secret(password, "Password")
			if err != nil {
				return err
			}
			grant, err := rt.service.Login(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			rt.success("Logged in as %s (%s)", grant.Identity.Name, grant.Identity.Role)
			if n := rt.service.Ledger().UnreadCount(); n > 0 {
				rt.info("You have %d unread notification(s)", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignupCmd() *cobra.Command {
	var req auth.SignupRequest
	var role string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a donor or recipient account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			pw, err := rt.secret(req.Password, "Password")
			if err != nil {
				return err
			}
			req.Password = pw
			if req.ConfirmPassword == "" && rt.settings.NonInteractive {
				req.ConfirmPassword = pw
			}
			confirm, err := rt.secret(req.ConfirmPassword, "Confirm password")
			if err != nil {
				return err
			}
			req.ConfirmPassword = confirm
			req.Role = identity.ParseRole(role)

			grant, err := rt.service.Signup(cmd.Context(), req)
			if err != nil {
				return err
			}
			rt.success("Welcome to ReWearify, %s! Signed in as %s", grant.Identity.Name, grant.Identity.Role)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "Full name")
	f.StringVar(&req.Email, "email", "", "Email address")
	f.StringVar(&req.Password, "password", "", "Password, at least 6 characters (prompted when empty)")
	f.StringVar(&req.ConfirmPassword, "confirm-password", "", "Password confirmation (prompted when empty)")
	f.StringVar(&role, "role", string(identity.RoleDonor), "Account type: donor or recipient")
	f.StringVar(&req.Organization, "organization", "", "Organization name, required for recipients")
	f.StringVar(&req.Location, "location", "", "City and state")
	f.StringVar(&req.Phone, "phone", "", "Phone number")
	f.StringVar(&req.Bio, "bio", "", "Short bio")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			rt.service.Logout(cmd.Context())
			rt.success("Logged out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			current := rt.service.Current()
			if current == nil {
				return auth.ErrNoActiveSession
			}
			return rt.table(profileRows(current))
		},
	}
}

func profileRows(i *identity.Identity) [][]string {
	rows := [][]string{{"FIELD", "VALUE"}}
	add := func(k, v string) {
		if v != "" {
			rows = append(rows, []string{k, v})
		}
	}
	add("id", i.ID)
	add("name", i.Name)
	add("email", i.Email)
	add("role", i.Role.String())
	add("organization", i.Organization)
	add("location", i.Location)
	add("phone", i.Phone)
	add("bio", i.Bio)
	add("joined", i.JoinDate)
	return rows
}

func newProfileCmd() *cobra.Command {
	var name, email, organization, location, phone, bio, picture string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update profile fields of the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := runtimeFrom(cmd)
			var patch identity.ProfilePatch
			f := cmd.Flags()
			pick := func(flag string, v *string) *string {
				if f.Changed(flag) {
					return v
				}
				return nil
			}
			patch.Name = pick("name", &name)
			patch.Email = pick("email", &email)
			patch.Organization = pick("organization", &organization)
			patch.Location = pick("location", &location)
			patch.Phone = pick("phone", &phone)
			patch.Bio = pick("bio", &bio)
			patch.ProfilePicture = pick("picture", &picture)

			updated, err := rt.service.UpdateProfile(cmd.Context(), patch)
			if err != nil {
				return err
			}
			if patch.Empty() {
				rt.info("Nothing to update")
			} else {
				rt.success("Profile updated")
			}
			return rt.table(profileRows(updated))
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "Full name")
	f.StringVar(&email, "email", "", "Email address")
	f.StringVar(&organization, "organization", "", "Organization")
	f.StringVar(&location, "location", "", "Location")
	f.StringVar(&phone, "phone", "", "Phone number")
	f.StringVar(&bio, "bio", "", "Short bio")
	f.StringVar(&picture, "picture", "", "Profile picture URL")
	return cmd
}
