package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthcrm/hearth/pkg/contextkeys"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func keyRows(token string, expiresAt, revokedAt *time.Time) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "name", "prefix", "hash", "scopes",
		"created_at", "expires_at", "revoked_at", "last_used_at",
	})
	var exp, rev interface{}
	if expiresAt != nil {
		exp = *expiresAt
	}
	if revokedAt != nil {
		rev = *revokedAt
	}
	rows.AddRow("key-1", int64(7), "ci", TokenDisplayPrefix(token), HashToken(token),
		pq.StringArray{ScopeRecordsRead}, time.Now(), exp, rev, nil)
	return rows
}

func TestAuthenticateSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	token, err := GenerateToken()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, user_id, name, prefix, hash, scopes").
		WithArgs(HashToken(token)).
		WillReturnRows(keyRows(token, nil, nil))

	key, err := NewStore(db).Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), key.UserID)
	assert.Equal(t, []string{ScopeRecordsRead}, key.Scopes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateRejectsMalformedTokenWithoutQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Malformed tokens never reach the database
	_, err = NewStore(db).Authenticate(context.Background(), "not-a-key")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateUnknownToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	token, err := GenerateToken()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, user_id, name, prefix, hash, scopes").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewStore(db).Authenticate(context.Background(), token)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAuthenticateRejectsRevokedKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	token, err := GenerateToken()
	require.NoError(t, err)

	revoked := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT id, user_id, name, prefix, hash, scopes").
		WillReturnRows(keyRows(token, nil, &revoked))

	_, err = NewStore(db).Authenticate(context.Background(), token)
	assert.True(t, errors.Is(err, ErrKeyRevoked))
}

func TestAuthenticateRejectsExpiredKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	token, err := GenerateToken()
	require.NoError(t, err)

	expired := time.Now().Add(-time.Minute)
	mock.ExpectQuery("SELECT id, user_id, name, prefix, hash, scopes").
		WillReturnRows(keyRows(token, &expired, nil))

	_, err = NewStore(db).Authenticate(context.Background(), token)
	assert.True(t, errors.Is(err, ErrKeyExpired))
}

func TestCreateKeyStoresHashNotPlaintext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(1, 1))

	key, token, err := NewStore(db).CreateKey(context.Background(), 7, "ci", []string{ScopeRecordsRead}, nil)
	require.NoError(t, err)

	assert.True(t, ValidTokenFormat(token))
	assert.Equal(t, HashToken(token), key.Hash)
	assert.NotContains(t, key.Hash, token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeKeyNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE api_keys SET revoked_at").
		WithArgs("key-1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewStore(db).RevokeKey(context.Background(), "key-1", 7)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteExpiredKeys(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM api_keys WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewStore(db).DeleteExpiredKeys(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMiddlewareAttachesAuthContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	token, err := GenerateToken()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, user_id, name, prefix, hash, scopes").
		WillReturnRows(keyRows(token, nil, nil))
	mock.ExpectExec("UPDATE api_keys SET last_used_at").
		WillReturnResult(sqlmock.NewResult(0, 1))

	var got *Context
	handler := Middleware(NewStore(db), quietLogger(), true)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		}))

	req := httptest.NewRequest("GET", "/records/lead", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "key-1", got.KeyID)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := Middleware(NewStore(db), quietLogger(), true)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run")
		}))

	req := httptest.NewRequest("GET", "/records/lead", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareOptionalPassesAnonymous(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	called := false
	handler := Middleware(NewStore(db), quietLogger(), false)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			assert.Nil(t, FromContext(r.Context()))
		}))

	req := httptest.NewRequest("GET", "/records/lead", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireScope(t *testing.T) {
	handler := RequireScope(ScopeRecordsWrite)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	// Read-only key is rejected
	req := httptest.NewRequest("POST", "/records/lead", nil)
	req = req.WithContext(contextkeys.WithAuth(req.Context(), &Context{UserID: 7, Scopes: []string{ScopeRecordsRead}}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin key passes
	req = httptest.NewRequest("POST", "/records/lead", nil)
	req = req.WithContext(contextkeys.WithAuth(req.Context(), &Context{UserID: 7, Scopes: []string{ScopeAdmin}}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Anonymous is unauthorized
	req = httptest.NewRequest("POST", "/records/lead", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
