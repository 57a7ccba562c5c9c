package jobs

type JobType string

const (
	JobSyncEvent        JobType = "sync_event"
	JobSendNotification JobType = "send_notification"
)

// IsValid reports whether t is a known job type.
func (t JobType) IsValid() bool {
	switch t {
	case JobSyncEvent, JobSendNotification:
		return true
	default:
		return false
	}
}
