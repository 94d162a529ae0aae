package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watch-party/relay/internal/db"
	"github.com/watch-party/relay/internal/model"
)

func newTestRepo(t *testing.T) *EventRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })
	return NewEventRepository(testDB)
}

func TestEventRepository_RecordAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sessionID := uuid.New()
	other := uuid.New()

	require.NoError(t, repo.Record(ctx, sessionID, 1, model.NewEnvelope("alice", "red", model.UserJoin{})))
	require.NoError(t, repo.Record(ctx, sessionID, 1, model.Envelope{Payload: model.SetTime(9000)}))
	require.NoError(t, repo.Record(ctx, other, 2, model.NewEnvelope("bob", "blue", model.UserJoin{})))
	require.NoError(t, repo.Record(ctx, sessionID, 1, model.NewEnvelope("alice", "red", model.ChatMessage("hey"))))

	records, err := repo.ListBySession(ctx, sessionID, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []model.Op{model.OpUserJoin, model.OpSetTime, model.OpChatMessage},
		[]model.Op{records[0].Op, records[1].Op, records[2].Op})
	assert.Equal(t, "alice", records[0].User)
	assert.Empty(t, records[1].User)
	assert.Equal(t, uint64(1), records[2].ConnectionID)
	assert.Equal(t, sessionID, records[2].SessionID)
	assert.Less(t, records[0].ID, records[1].ID)

	env, err := model.DecodeEnvelope(records[2].Envelope)
	require.NoError(t, err)
	assert.Equal(t, model.ChatMessage("hey"), env.Payload)
	assert.Equal(t, "alice", *env.User)

	count, err := repo.CountBySession(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEventRepository_ListReturnsMostRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sessionID := uuid.New()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, sessionID, 1, model.Envelope{Payload: model.SetTime(uint64(i))}))
	}

	tests := []struct {
		name  string
		limit int
		want  []model.Payload
	}{
		{"limit below count", 2, []model.Payload{model.SetTime(3), model.SetTime(4)}},
		{"limit above count", 10, []model.Payload{model.SetTime(0), model.SetTime(1), model.SetTime(2), model.SetTime(3), model.SetTime(4)}},
		{"default limit", -1, []model.Payload{model.SetTime(0), model.SetTime(1), model.SetTime(2), model.SetTime(3), model.SetTime(4)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := repo.ListBySession(ctx, sessionID, tt.limit)
			require.NoError(t, err)

			got := make([]model.Payload, len(records))
			for i, r := range records {
				env, err := model.DecodeEnvelope(r.Envelope)
				require.NoError(t, err)
				got[i] = env.Payload
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventRepository_ListUnknownSession(t *testing.T) {
	repo := newTestRepo(t)

	records, err := repo.ListBySession(context.Background(), uuid.New(), 10)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestEventRepository_RecordRejectsEmptyEnvelope(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Record(context.Background(), uuid.New(), 1, model.Envelope{})
	assert.ErrorIs(t, err, model.ErrMalformedEnvelope)
}

func TestEventRepository_DeleteBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sessionID := uuid.New()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Append(ctx, &model.EventRecord{
			SessionID:    sessionID,
			ConnectionID: 1,
			Op:           model.OpSetTime,
			Envelope:     json.RawMessage(`{"op":"SetTime","data":1,"reflected":false}`),
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		}))
	}

	deleted, err := repo.DeleteBefore(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := repo.CountBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// Envelopes written through Record come back byte-for-byte decodable to the
// same envelope, whatever the payload or attribution.
func TestEventJournalRoundTripProperty(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "journal_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	db.ResetDB()
	testDB, err := db.InitDB(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	defer db.ResetDB()

	repo := NewEventRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	genPayload := gen.OneGenOf(
		gen.UInt64().Map(func(v uint64) model.Payload { return model.SetTime(v) }),
		gopter.CombineGens(gen.Bool(), gen.UInt64()).Map(func(v []interface{}) model.Payload {
			return model.SetPlaying{Playing: v[0].(bool), Time: v[1].(uint64)}
		}),
		gen.AlphaString().Map(func(v string) model.Payload { return model.ChatMessage(v) }),
		gen.Const(model.Payload(model.UserJoin{})),
		gen.Const(model.Payload(model.UserLeave{})),
	)

	properties.Property("recorded envelopes decode to the original", prop.ForAll(
		func(payload model.Payload, user string, connectionID uint64) bool {
			sessionID := uuid.New()
			env := model.NewEnvelope(user, "#ffffff", payload)

			if err := repo.Record(ctx, sessionID, connectionID, env); err != nil {
				t.Logf("failed to record event: %v", err)
				return false
			}

			records, err := repo.ListBySession(ctx, sessionID, 1)
			if err != nil || len(records) != 1 {
				t.Logf("failed to list events: %v", err)
				return false
			}

			got, err := model.DecodeEnvelope(records[0].Envelope)
			if err != nil {
				t.Logf("failed to decode journaled envelope: %v", err)
				return false
			}

			return assert.ObjectsAreEqual(env, got) &&
				records[0].ConnectionID == connectionID &&
				records[0].User == user
		},
		genPayload,
		gen.AlphaString(),
		gen.UInt64Range(1, 1<<62),
	))

	properties.TestingRun(t)
}
