package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/losol/eventuras-sub008/internal/domain/job"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	return b, nil
}

// DecodePayload unmarshals j.Payload into the typed payload for j.Type and
// validates it.
func DecodePayload(j job.Job) (any, error) {
	t := JobType(j.Type)
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	var p any
	switch t {
	case JobSyncEvent:
		var v SyncEventPayload
		if err := json.Unmarshal(j.Payload, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		p = v

	case JobSendNotification:
		var v SendNotificationPayload
		if err := json.Unmarshal(j.Payload, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		p = v
	}

	if err := ValidatePayload(t, p); err != nil {
		return nil, err
	}
	return p, nil
}

// NewRequest builds a job.CreateRequest carrying an encoded payload.
// idempotencyKey may be empty.
func NewRequest(t JobType, payload any, idempotencyKey string) (job.CreateRequest, error) {
	b, err := EncodePayload(t, payload)
	if err != nil {
		return job.CreateRequest{}, err
	}

	req := job.CreateRequest{Type: string(t), Payload: b}
	if idempotencyKey != "" {
		req.IdempotencyKey = &idempotencyKey
	}
	return req, nil
}

func SyncEventKey(eventID, provider string) string {
	if provider == "" {
		return "sync_event:" + eventID
	}
	return "sync_event:" + eventID + ":" + provider
}

func SendNotificationKey(notificationID string) string {
	return "send_notification:" + notificationID
}
