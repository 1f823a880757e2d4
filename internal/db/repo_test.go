package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventpipe/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

func sampleEvent() *types.Event {
	return &types.Event{
		ID:         "e1",
		Severity:   types.SeverityFatal,
		Type:       "TypeError",
		Stack:      "at main (app.js:1)",
		Timestamp:  1700000000000,
		ReceivedAt: 1700000000500,
		Resource:   "/x",
		AppName:    "A",
		AppVersion: "1.2.3",
		Tags:       map[string]any{"region": "eu"},
		Endpoint: types.Endpoint{
			ID:       "dev-1",
			Platform: "ios",
			Country:  "DE",
		},
		Processed: true,
		Raw:       json.RawMessage(`{"id":"e1"}`),
	}
}

// --- EventRepository ---

func TestEventRepository_Insert_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)
	ev := sampleEvent()

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return assert.Contains(t, sql, "INSERT INTO events") &&
			assert.Contains(t, sql, "stack") &&
			assert.Contains(t, sql, "payload")
	}), mock.MatchedBy(func(args []any) bool {
		if len(args) != 24 {
			return false
		}
		var tags map[string]any
		if err := json.Unmarshal(args[11].([]byte), &tags); err != nil {
			return false
		}
		return args[0] == "e1" &&
			args[1] == "fatal" &&
			*args[3].(*string) == "at main (app.js:1)" &&
			args[4] == int64(1700000000000) &&
			args[5] == int64(1700000000500) &&
			args[7].(*string) == nil &&
			tags["region"] == "eu" &&
			*args[12].(*string) == "dev-1" &&
			args[13].(*string) == nil &&
			*args[19].(*string) == "DE" &&
			args[22] == true &&
			string(args[23].([]byte)) == `{"id":"e1"}`
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Insert(context.Background(), ev))
	db.AssertExpectations(t)
}

func TestEventRepository_Insert_NilTagsAndPayload(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)
	ev := sampleEvent()
	ev.Tags = nil
	ev.Raw = nil

	db.On("Exec", mock.Anything, mock.Anything, mock.MatchedBy(func(args []any) bool {
		return args[11].([]byte) == nil && args[23].([]byte) == nil
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Insert(context.Background(), ev))
	db.AssertExpectations(t)
}

func TestEventRepository_Insert_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("duplicate key value violates unique constraint"))

	err := repo.Insert(context.Background(), sampleEvent())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	assert.Equal(t, "e1", appErr.Details["event_id"])
}

func TestEventRepository_Insert_UnencodableTags(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)
	ev := sampleEvent()
	ev.Tags = map[string]any{"bad": make(chan int)}

	err := repo.Insert(context.Background(), ev)
	assert.Equal(t, types.ErrCodeInternalUnexpected, types.CodeOf(err))
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

// --- AlertRepository ---

func TestAlertRepository_Insert_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)
	derived := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return assert.Contains(t, sql, "INSERT INTO alerts")
	}), mock.MatchedBy(func(args []any) bool {
		return len(args) == 5 &&
			args[0] == "e1" &&
			args[1] == "error" &&
			args[2] == "/x" &&
			string(args[3].([]byte)) == `{"id":"e1"}` &&
			args[4].(*time.Time).Equal(derived)
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Insert(context.Background(), &types.Alert{
		ID:        "e1",
		Severity:  types.SeverityError,
		Resource:  "/x",
		Payload:   json.RawMessage(`{"id":"e1"}`),
		DerivedAt: derived,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestAlertRepository_Insert_ZeroDerivedAtUsesNow(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.MatchedBy(func(args []any) bool {
		return args[4].(*time.Time) == nil
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Insert(context.Background(), &types.Alert{ID: "e1", Severity: types.SeverityFatal, Resource: "/x"}))
	db.AssertExpectations(t)
}

func TestAlertRepository_Insert_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Insert(context.Background(), &types.Alert{ID: "e1", Severity: types.SeverityFatal, Resource: "/x"})
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestNullableHelpers(t *testing.T) {
	assert.Nil(t, nilIfEmpty(""))
	require.NotNil(t, nilIfEmpty("ios"))
	assert.Equal(t, "ios", *nilIfEmpty("ios"))

	assert.Nil(t, nilIfZeroTime(time.Time{}))
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NotNil(t, nilIfZeroTime(now))
	assert.True(t, now.Equal(*nilIfZeroTime(now)))

	assert.Nil(t, nilIfEmptyJSON(nil))
	assert.Nil(t, nilIfEmptyJSON(json.RawMessage{}))
	assert.JSONEq(t, `{"a":1}`, string(nilIfEmptyJSON([]byte(`{"a":1}`))))
}
