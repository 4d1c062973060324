package notify

import "time"

func mustTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		panic(err)
	}
	return t
}

// SeedNotifications returns the demo notifications for the seeded directory.
func SeedNotifications() []Notification {
	return []Notification{
		{
			ID:        "notif_001",
			UserID:    "1",
			Type:      "donation_approved",
			Title:     "Donation Approved!",
			Message:   "Your winter coats donation has been approved and is now available for requests.",
			Timestamp: mustTime("2024-11-16T10:30:00Z"),
			ActionURL: "/dashboard/donations/don_001",
		},
		{
			ID:        "notif_002",
			UserID:    "1",
			Type:      "request_received",
			Title:     "New Request Received",
			Message:   "Hope Community Center has requested 3 items from your winter coats donation.",
			Timestamp: mustTime("2024-11-16T14:45:00Z"),
			ActionURL: "/dashboard/requests/req_001",
		},
		{
			ID:        "notif_003",
			UserID:    "2",
			Type:      "request_approved",
			Title:     "Request Approved",
			Message:   "Your request for winter coats has been approved! Delivery scheduled for Nov 22.",
			Timestamp: mustTime("2024-11-17T09:15:00Z"),
			Read:      true,
			ActionURL: "/dashboard/my-requests/req_001",
		},
	}
}
