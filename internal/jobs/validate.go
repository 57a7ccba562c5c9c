package jobs

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var payloadValidator = validator.New(validator.WithRequiredStructEnabled())

var payloadTypes = map[JobType]reflect.Type{
	JobSyncEvent:        reflect.TypeFor[SyncEventPayload](),
	JobSendNotification: reflect.TypeFor[SendNotificationPayload](),
}

// ValidatePayload checks that payload (a value or pointer) is the payload
// type registered for t and satisfies its validate tags.
func ValidatePayload(t JobType, payload any) error {
	want, ok := payloadTypes[t]
	if !ok {
		return ErrInvalidJobType
	}

	v := reflect.ValueOf(payload)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ErrInvalidJobPayload
		}
		v = v.Elem()
	}
	if v.Type() != want {
		return ErrPayloadTypeMismatch
	}

	if err := payloadValidator.Struct(v.Interface()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	return nil
}
