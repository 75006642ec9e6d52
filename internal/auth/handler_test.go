package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stocksense/stocksense/internal/shared"
)

type memRepo struct {
	byEmail map[string]User
	byID    map[int64]User
	nextID  int64
}

func newMemRepo() *memRepo {
	return &memRepo{byEmail: map[string]User{}, byID: map[int64]User{}}
}

func (m *memRepo) CreateUser(_ context.Context, user User) (User, error) {
	if _, exists := m.byEmail[user.Email]; exists {
		return User{}, shared.ErrDuplicate
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.byEmail[user.Email] = user
	m.byID[user.ID] = user
	return user, nil
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) FindByID(_ context.Context, id int64) (User, error) {
	u, ok := m.byID[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func newAuthRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tokens := shared.NewTokenManager(client, "test-secret", time.Hour)

	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	handler := NewHandler(logger, NewService(newMemRepo()), tokens)

	r := chi.NewRouter()
	r.Route("/api/auth", handler.MountRoutes)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, router http.Handler) sessionResponse {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Asad",
		"email":    "asad@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	return session
}

func TestRegisterAndMe(t *testing.T) {
	router := newAuthRouter(t)
	session := registerUser(t, router)

	rec := doRequest(t, router, http.MethodGet, "/api/auth/me", session.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, "asad@example.com", me.Email)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router := newAuthRouter(t)
	registerUser(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Asad Again",
		"email":    "asad@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	router := newAuthRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Asad",
		"email":    "not-an-email",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Asad",
		"email":    "asad@example.com",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	router := newAuthRouter(t)
	registerUser(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "asad@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "asad@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	router := newAuthRouter(t)
	session := registerUser(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/auth/logout", session.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/auth/me", session.Token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeWithoutToken(t *testing.T) {
	router := newAuthRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
