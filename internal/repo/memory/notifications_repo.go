package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/domain/product"
	"github.com/losol/eventuras-sub008/internal/utils"
)

type ProductsRepo struct {
	mu    sync.RWMutex
	items map[string]product.Product
}

func NewProductsRepo(products ...product.Product) *ProductsRepo {
	r := &ProductsRepo{items: make(map[string]product.Product)}
	for _, p := range products {
		r.items[p.ID] = p
	}
	return r
}

func (r *ProductsRepo) GetByID(_ context.Context, id string) (product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

// NotificationsRepo keeps notifications and recipients in insertion order.
type NotificationsRepo struct {
	mu         sync.Mutex
	items      map[string]notification.Notification
	recipients map[string][]notification.Recipient
}

func NewNotificationsRepo() *NotificationsRepo {
	return &NotificationsRepo{
		items:      make(map[string]notification.Notification),
		recipients: make(map[string][]notification.Recipient),
	}
}

func (r *NotificationsRepo) Create(_ context.Context, n notification.Notification, recipients []notification.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n.Stats.Recipients = len(recipients)
	r.items[n.ID] = n
	r.recipients[n.ID] = append([]notification.Recipient(nil), recipients...)
	return nil
}

func (r *NotificationsRepo) GetByID(_ context.Context, id string) (notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	return n, nil
}

// ListCursor pages newest first, ordered like the postgres repo.
func (r *NotificationsRepo) ListCursor(_ context.Context, f notification.ListFilter, limit int, after utils.Cursor) ([]notification.Notification, *string, bool, error) {
	r.mu.Lock()
	all := make([]notification.Notification, 0, len(r.items))
	for _, n := range r.items {
		if f.EventID != nil && (n.EventID == nil || *n.EventID != *f.EventID) {
			continue
		}
		if f.Status != nil && n.Status != *f.Status {
			continue
		}
		if !before(n.CreatedAt, n.ID, after) {
			continue
		}
		all = append(all, n)
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if len(all) <= limit {
		return all, nil, false, nil
	}

	page := all[:limit]
	last := page[len(page)-1]
	cur, err := utils.EncodeCursor(last.CreatedAt, last.ID)
	if err != nil {
		return nil, nil, false, err
	}
	return page, &cur, true, nil
}

// before reports whether (at, id) sorts after the cursor in a descending list.
func before(at time.Time, id string, c utils.Cursor) bool {
	if at.Equal(c.At) {
		return id < c.ID
	}
	return at.Before(c.At)
}

func (r *NotificationsRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *NotificationsRepo) ListRecipients(_ context.Context, notificationID string) ([]notification.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]notification.Recipient(nil), r.recipients[notificationID]...), nil
}

func (r *NotificationsRepo) findRecipient(id string) (string, int, bool) {
	for nid, list := range r.recipients {
		for i := range list {
			if list[i].ID == id {
				return nid, i, true
			}
		}
	}
	return "", 0, false
}

func (r *NotificationsRepo) ClaimRecipient(_ context.Context, recipientID string, staleAfter time.Duration) (notification.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nid, i, ok := r.findRecipient(recipientID)
	if !ok {
		return notification.Recipient{}, notification.ErrNotFound
	}
	rc := &r.recipients[nid][i]

	now := time.Now().UTC()
	switch rc.Status {
	case notification.RecipientSent:
		return notification.Recipient{}, notification.ErrAlreadySent
	case notification.RecipientSending:
		if now.Sub(rc.UpdatedAt) < staleAfter {
			return notification.Recipient{}, notification.ErrInProgress
		}
	}

	rc.Status = notification.RecipientSending
	rc.Attempts++
	rc.Error = nil
	rc.UpdatedAt = now
	return *rc, nil
}

func (r *NotificationsRepo) MarkRecipientSent(_ context.Context, recipientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nid, i, ok := r.findRecipient(recipientID)
	if !ok {
		return notification.ErrNotFound
	}
	now := time.Now().UTC()
	rc := &r.recipients[nid][i]
	rc.Status = notification.RecipientSent
	rc.SentAt = &now
	rc.Error = nil
	rc.UpdatedAt = now
	return nil
}

func (r *NotificationsRepo) MarkRecipientFailed(_ context.Context, recipientID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nid, i, ok := r.findRecipient(recipientID)
	if !ok {
		return notification.ErrNotFound
	}
	rc := &r.recipients[nid][i]
	rc.Status = notification.RecipientFailed
	rc.Error = &errMsg
	rc.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *NotificationsRepo) UpdateStatus(_ context.Context, id string, status notification.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return notification.ErrNotFound
	}
	now := time.Now().UTC()
	if n.Status != status {
		n.StatusUpdatedAt = now
	}
	n.Status = status
	n.UpdatedAt = now
	r.items[id] = n
	return nil
}

func (r *NotificationsRepo) RefreshStatistics(_ context.Context, id string) (notification.Statistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return notification.Statistics{}, notification.ErrNotFound
	}

	var st notification.Statistics
	for _, rc := range r.recipients[id] {
		st.Recipients++
		switch rc.Status {
		case notification.RecipientSent:
			st.Sent++
		case notification.RecipientFailed:
			st.Errors++
		}
	}
	n.Stats = st
	r.items[id] = n
	return st, nil
}

// TxManager runs fn directly. The memory stores have no rollback.
type TxManager struct{}

func (TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
