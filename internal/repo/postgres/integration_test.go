package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losol/eventuras-sub008/internal/config"
	"github.com/losol/eventuras-sub008/internal/db"
	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/repo/postgres"
	"github.com/losol/eventuras-sub008/internal/utils"
)

// testPool connects to TEST_DB_DSN and applies migrations. Tests using it are
// skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, config.DBConfig{URL: dsn, MaxConns: 4}, "eventuras-sync-test")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return pool
}

func seedEvent(t *testing.T, pool *pgxpool.Pool) (eventID, userID string) {
	t.Helper()
	ctx := context.Background()

	eventID, userID = uuid.NewString(), uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO events (id, title, start_at) VALUES ($1, 'Course', $2)`, eventID, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO users (id, name, email) VALUES ($1, 'Ada', 'ada@example.com')`, userID)
	require.NoError(t, err)
	return eventID, userID
}

func TestIntegration_ExternalEvents(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	eventID, _ := seedEvent(t, pool)

	repo := postgres.NewExternalEventsRepo(pool, nil)
	externalID := "course-" + uuid.NewString()

	require.NoError(t, repo.Create(ctx, external.NewEvent(eventID, "moodle", externalID)))
	assert.ErrorIs(t, repo.Create(ctx, external.NewEvent(eventID, "moodle", externalID)), external.ErrDuplicateEvent)
	assert.ErrorIs(t, repo.Create(ctx, external.NewEvent(uuid.NewString(), "moodle", "x-"+externalID)), event.ErrNotFound)

	got, err := repo.FindForEvent(ctx, eventID, "moodle")
	require.NoError(t, err)
	assert.Equal(t, externalID, got.ExternalEventID)

	require.NoError(t, repo.Delete(ctx, got.ID))
	_, err = repo.FindForEvent(ctx, eventID, "moodle")
	assert.ErrorIs(t, err, external.ErrEventNotFound)
}

func TestIntegration_ExternalAccountsUniquePerUser(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	_, userID := seedEvent(t, pool)

	repo := postgres.NewExternalAccountsRepo(pool, nil)
	require.NoError(t, repo.Create(ctx, external.NewAccount("zoom", "z-"+uuid.NewString(), userID, nil)))

	err := repo.Create(ctx, external.NewAccount("zoom", "z-"+uuid.NewString(), userID, nil))
	assert.ErrorIs(t, err, external.ErrConflict)

	acc, err := repo.FindByUser(ctx, "zoom", userID)
	require.NoError(t, err)
	assert.Equal(t, userID, acc.UserID)
}

func TestIntegration_NotificationsListCursor(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	eventID, _ := seedEvent(t, pool)

	repo := postgres.NewNotificationsRepo(pool, nil)
	for i := 0; i < 3; i++ {
		n := notification.New(notification.KindEmail, "Hello", "Body")
		n.EventID = &eventID
		n.CreatedAt = n.CreatedAt.Add(time.Duration(i) * time.Millisecond)
		rec := notification.NewRecipient(n.ID, "Ada", "ada@example.com")
		require.NoError(t, repo.Create(ctx, n, []notification.Recipient{rec}))
	}

	filter := notification.ListFilter{EventID: &eventID}
	page, next, hasMore, err := repo.ListCursor(ctx, filter, 2, utils.Start())
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, hasMore)
	require.NotNil(t, next)

	after, err := utils.DecodeCursor(*next)
	require.NoError(t, err)
	rest, _, hasMore, err := repo.ListCursor(ctx, filter, 2, after)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.False(t, hasMore)

	recipients, err := repo.ListRecipients(ctx, rest[0].ID)
	require.NoError(t, err)
	assert.Len(t, recipients, 1)
}
