package audit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBLoggerLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	logger, err := NewDBLogger(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO audit_events").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(17))

	actor := int64(42)
	event := NewEvent(context.Background(), EventTypePermissionChange, EventStatusSuccess, &actor, "role", "3", "matrix updated")
	event.Metadata = map[string]interface{}{"object": "lead"}

	require.NoError(t, logger.Log(context.Background(), event))
	assert.Equal(t, int64(17), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNopLoggerDiscards(t *testing.T) {
	var l Logger = NopLogger{}
	assert.NoError(t, l.Log(context.Background(), &Event{EventType: EventTypeAccessDenied}))
	assert.NoError(t, l.Close())
}
