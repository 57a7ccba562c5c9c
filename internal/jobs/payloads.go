package jobs

// SyncEventPayload asks the worker to sync one event to its external providers.
// An empty Provider means every registered provider.
type SyncEventPayload struct {
	EventID     string `json:"eventId" validate:"required,uuid"`
	Provider    string `json:"provider,omitempty" validate:"omitempty,max=100"`
	RequestedBy string `json:"requestedBy,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
}

// SendNotificationPayload is ID-based; the worker loads recipients from the DB.
type SendNotificationPayload struct {
	NotificationID string `json:"notificationId" validate:"required,uuid"`
}
