package cleanup

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ecomops/opsloop/pkg/config"
	"github.com/ecomops/opsloop/pkg/database"
)

// newTestDB opens a migrated core-schema database. In CI (CI_DATABASE_URL
// set) it connects to the external PostgreSQL service container; locally it
// spins up a testcontainer.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := pgContainer.Terminate(ctx); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db, "test", database.SchemaCore))
	return db
}

func newService(db *sql.DB) *Service {
	return NewService(db, config.RetentionConfig{
		CleanupInterval:     time.Hour,
		ActionRetentionDays: 30,
	}, 24*time.Hour)
}

func insertCheckpoint(t *testing.T, db *sql.DB, age time.Duration) string {
	t.Helper()
	threadID := uuid.NewString()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO checkpoints (thread_id, state, updated_at)
		VALUES ($1, '{}'::jsonb, NOW() - ($2 * INTERVAL '1 second'))`,
		threadID, age.Seconds())
	require.NoError(t, err)
	return threadID
}

func insertAction(t *testing.T, db *sql.DB, status string, age time.Duration) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.QueryRowContext(context.Background(), `
		INSERT INTO pending_actions (agent_name, action_type, status, updated_at)
		VALUES ('inventory', 'restock_item', $1, NOW() - ($2 * INTERVAL '1 second'))
		RETURNING id`,
		status, age.Seconds()).Scan(&id))
	return id
}

func checkpointExists(t *testing.T, db *sql.DB, threadID string) bool {
	t.Helper()
	var exists bool
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM checkpoints WHERE thread_id = $1)`, threadID).Scan(&exists))
	return exists
}

func actionExists(t *testing.T, db *sql.DB, id int64) bool {
	t.Helper()
	var exists bool
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM pending_actions WHERE id = $1)`, id).Scan(&exists))
	return exists
}

func TestService_RemovesExpiredCheckpoints(t *testing.T) {
	db := newTestDB(t)
	expired := insertCheckpoint(t, db, 48*time.Hour)
	fresh := insertCheckpoint(t, db, time.Minute)

	newService(db).runAll(context.Background())

	assert.False(t, checkpointExists(t, db, expired), "expired checkpoint should be deleted")
	assert.True(t, checkpointExists(t, db, fresh), "fresh checkpoint should be preserved")
}

func TestService_RemovesDecidedActionsPastRetention(t *testing.T) {
	db := newTestDB(t)
	oldExecuted := insertAction(t, db, "executed", 40*24*time.Hour)
	oldRejected := insertAction(t, db, "rejected", 40*24*time.Hour)
	recentExecuted := insertAction(t, db, "executed", 24*time.Hour)

	newService(db).runAll(context.Background())

	assert.False(t, actionExists(t, db, oldExecuted), "old executed action should be deleted")
	assert.False(t, actionExists(t, db, oldRejected), "old rejected action should be deleted")
	assert.True(t, actionExists(t, db, recentExecuted), "recent action should be preserved")
}

func TestService_PreservesUndecidedActions(t *testing.T) {
	db := newTestDB(t)
	stalePending := insertAction(t, db, "pending", 40*24*time.Hour)
	staleApproved := insertAction(t, db, "approved", 40*24*time.Hour)

	newService(db).runAll(context.Background())

	assert.True(t, actionExists(t, db, stalePending), "pending actions are never swept")
	assert.True(t, actionExists(t, db, staleApproved), "approved actions are never swept")
}

func TestService_StartStop(t *testing.T) {
	svc := newService(newTestDB(t))

	svc.Start(context.Background())
	svc.Stop()

	// Stop after Stop is a no-op rather than a deadlock.
	svc.Stop()
}
