package externalsync

import (
	"encoding/json"
	"errors"
	"sort"
)

// IDSet is an insertion-ordered set of ids. The zero value is ready to use.
type IDSet struct {
	ids  []string
	seen map[string]struct{}
}

func (s *IDSet) Add(id string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}

func (s *IDSet) Contains(id string) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *IDSet) Len() int { return len(s.ids) }

func (s *IDSet) Values() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	if s.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.ids)
}

// Result accumulates the outcome of one provider run. It is not safe for
// concurrent use; the orchestrator fills it from a single goroutine.
type Result struct {
	ProviderName string

	CreatedUserIDs              IDSet
	ExistingUserIDs             IDSet
	PreviouslyRegisteredUserIDs IDSet
	NewRegisteredUserIDs        IDSet
	TotalRegisteredUserIDs      IDSet

	GenericErrors    []error
	UserExportErrors map[string]error

	// NotSyncedCount counts registrations the provider declined without error.
	NotSyncedCount int
}

func NewResult(providerName string) *Result {
	return &Result{
		ProviderName:     providerName,
		UserExportErrors: make(map[string]error),
	}
}

func (r *Result) AddGenericError(err error) {
	r.GenericErrors = append(r.GenericErrors, err)
}

// AddUserError records err against userID. Repeated errors for the same user
// are joined so the user keeps a single entry.
func (r *Result) AddUserError(userID string, err error) {
	if r.UserExportErrors == nil {
		r.UserExportErrors = make(map[string]error)
	}
	if prev, ok := r.UserExportErrors[userID]; ok {
		err = errors.Join(prev, err)
	}
	r.UserExportErrors[userID] = err
}

func (r *Result) HasErrors() bool {
	return len(r.GenericErrors) > 0 || len(r.UserExportErrors) > 0
}

type resultJSON struct {
	ProviderName                string            `json:"providerName"`
	CreatedUserIDs              IDSet             `json:"createdUserIds"`
	ExistingUserIDs             IDSet             `json:"existingUserIds"`
	PreviouslyRegisteredUserIDs IDSet             `json:"previouslyRegisteredUserIds"`
	NewRegisteredUserIDs        IDSet             `json:"newRegisteredUserIds"`
	TotalRegisteredUserIDs      IDSet             `json:"totalRegisteredUserIds"`
	GenericErrors               []string          `json:"genericErrors"`
	UserExportErrors            map[string]string `json:"userExportErrors"`
	NotSyncedCount              int               `json:"notSyncedCount"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		ProviderName:                r.ProviderName,
		CreatedUserIDs:              r.CreatedUserIDs,
		ExistingUserIDs:             r.ExistingUserIDs,
		PreviouslyRegisteredUserIDs: r.PreviouslyRegisteredUserIDs,
		NewRegisteredUserIDs:        r.NewRegisteredUserIDs,
		TotalRegisteredUserIDs:      r.TotalRegisteredUserIDs,
		GenericErrors:               make([]string, 0, len(r.GenericErrors)),
		UserExportErrors:            make(map[string]string, len(r.UserExportErrors)),
		NotSyncedCount:              r.NotSyncedCount,
	}
	for _, err := range r.GenericErrors {
		out.GenericErrors = append(out.GenericErrors, err.Error())
	}
	for id, err := range r.UserExportErrors {
		out.UserExportErrors[id] = err.Error()
	}
	return json.Marshal(out)
}

// ErroredUserIDs returns the users with export errors in a stable order.
func (r *Result) ErroredUserIDs() []string {
	ids := make([]string, 0, len(r.UserExportErrors))
	for id := range r.UserExportErrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
