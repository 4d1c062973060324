// Package dashboard maps an identity role to the dashboard it sees.
package dashboard

import (
	"strings"

	"github.com/rewearify/rewearify/internal/identity"
)

// Kind names a dashboard variant.
type Kind string

const (
	KindDonor        Kind = "donor"
	KindRecipient    Kind = "recipient"
	KindAdmin        Kind = "admin"
	KindUnrecognized Kind = "unrecognized"
)

// Action is a quick link offered on a dashboard.
type Action struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// View is the dashboard description handed to the presentation layer.
type View struct {
	Kind    Kind     `json:"kind"`
	Title   string   `json:"title"`
	Message string   `json:"message,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// Recognized reports whether the view is one of the role dashboards.
func (v View) Recognized() bool {
	return v.Kind != KindUnrecognized
}

// Fallback is the page shown for roles outside the known set.
var Fallback = View{
	Kind:    KindUnrecognized,
	Title:   "Role not recognized",
	Message: "Please contact support if you continue to see this message.",
}

// Select picks the dashboard for role.
func Select(role identity.Role) View {
	switch role {
	case identity.RoleDonor:
		return View{
			Kind:    KindDonor,
			Title:   "Donor Dashboard",
			Message: "Ready to make a difference in your community today?",
			Actions: []Action{
				{Label: "Add New Donation", Path: "/donate"},
				{Label: "Track My Donations", Path: "/my-donations"},
				{Label: "Browse Community Needs", Path: "/browse"},
			},
		}
	case identity.RoleRecipient:
		return View{
			Kind:  KindRecipient,
			Title: "Recipient Dashboard",
			Actions: []Action{
				{Label: "Browse Items", Path: "/browse"},
				{Label: "Track My Requests", Path: "/my-requests"},
				{Label: "Partner Organizations", Path: "/organizations"},
			},
		}
	case identity.RoleAdmin:
		return View{
			Kind:  KindAdmin,
			Title: "Admin Dashboard",
			Actions: []Action{
				{Label: "Overview", Path: "/admin/overview"},
				{Label: "Donations", Path: "/admin/donations"},
				{Label: "Users", Path: "/admin/users"},
				{Label: "Analytics", Path: "/admin/analytics"},
			},
		}
	}
	return Fallback
}

// For selects the dashboard for an identity, personalising the greeting.
// A nil identity gets the fallback.
func For(current *identity.Identity) View {
	if current == nil {
		return Fallback
	}
	view := Select(current.Role)
	if !view.Recognized() {
		return view
	}
	if first := firstName(current.Name); first != "" {
		view.Title = "Welcome back, " + first + "!"
	}
	if view.Kind == KindRecipient {
		view.Message = joinNonEmpty(" • ", current.Organization, current.Location)
	}
	return view
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
