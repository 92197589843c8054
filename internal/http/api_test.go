package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumos/internal/auth"
	"resumos/internal/repository"
	"resumos/internal/repository/sqlite"
	"resumos/internal/service"
	"resumos/internal/storage"
)

const testSecret = "test-secret"

type testServer struct {
	router  *gin.Engine
	uploads repository.UploadRepository
	issuer  *auth.TokenIssuer
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := sqlite.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqlite.NewUserRepository(db)
	uploads := sqlite.NewUploadRepository(db)
	require.NoError(t, users.Init(context.Background()))
	require.NoError(t, uploads.Init(context.Background()))

	store, err := storage.NewLocalService(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	issuer, err := auth.NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	handler := NewHandler(
		service.NewUserService(users, issuer, logger),
		service.NewUploadService(uploads, users, store, logger),
		store,
		issuer,
		logger,
		opts,
	)
	router := gin.New()
	handler.RegisterRoutes(router)

	return &testServer{router: router, uploads: uploads, issuer: issuer}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

type uploadFields struct {
	title, description, course string
	fileName, fileBody         string
	extra                      map[string]string
}

func newUploadRequest(t *testing.T, path, token string, f uploadFields) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if f.title != "" {
		require.NoError(t, w.WriteField("title", f.title))
	}
	if f.description != "" {
		require.NoError(t, w.WriteField("description", f.description))
	}
	if f.course != "" {
		require.NoError(t, w.WriteField("course", f.course))
	}
	for k, v := range f.extra {
		require.NoError(t, w.WriteField(k, v))
	}
	if f.fileName != "" {
		part, err := w.CreateFormFile("file", f.fileName)
		require.NoError(t, err)
		_, err = io.WriteString(part, f.fileBody)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (s *testServer) registerAndLogin(t *testing.T, name, email, password string) (int64, string) {
	t.Helper()

	rec := s.postJSON(t, "/api/cadastro", map[string]string{"name": name, "email": email, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))

	rec = s.postJSON(t, "/api/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)
	return user.ID, login.Token
}

func (s *testServer) list(t *testing.T) []UploadResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/resumos", nil)
	req.Host = "files.example.com"
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var items []UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	return items
}

func TestEndToEndExample(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.postJSON(t, "/api/cadastro", map[string]string{"name": "Ana", "email": "a@x.com", "password": "secret"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var user UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Positive(t, user.ID)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, "a@x.com", user.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.postJSON(t, "/api/login", map[string]string{"email": "a@x.com", "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = s.do(newUploadRequest(t, "/api/upload", login.Token, uploadFields{title: "Notes", fileName: "f.pdf", fileBody: "%PDF-1.4"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Resumo UploadResponse `json:"resumo"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Notes", created.Resumo.Title)
	assert.Equal(t, "Ana", created.Resumo.UploaderName)
	assert.NotContains(t, created.Resumo.FileRef, "/")

	items := s.list(t)
	require.Len(t, items, 1)
	assert.Equal(t, "Notes", items[0].Title)
	assert.Equal(t, "Ana", items[0].UploaderName)
	assert.Equal(t, user.ID, items[0].UserID)
	assert.Equal(t, "http://files.example.com/uploads/"+items[0].FileRef, items[0].URL)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/uploads/"+items[0].FileRef, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	s := newTestServer(t, Options{})

	body := map[string]string{"name": "Ana", "email": "a@x.com", "password": "secret"}
	require.Equal(t, http.StatusCreated, s.postJSON(t, "/api/cadastro", body).Code)

	for i := 0; i < 3; i++ {
		rec := s.postJSON(t, "/api/cadastro", map[string]string{"name": "Bia", "email": "a@x.com", "password": "other"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	}

	// the original account still logs in with its own password
	assert.Equal(t, http.StatusOK, s.postJSON(t, "/api/login", map[string]string{"email": "a@x.com", "password": "secret"}).Code)
	assert.Equal(t, http.StatusUnauthorized, s.postJSON(t, "/api/login", map[string]string{"email": "a@x.com", "password": "other"}).Code)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t, Options{})

	assert.Equal(t, http.StatusBadRequest, s.postJSON(t, "/api/cadastro", map[string]string{"name": "Ana", "email": "a@x.com"}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/cadastro", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, s.do(req).Code)
}

func TestLoginStatuses(t *testing.T) {
	s := newTestServer(t, Options{})
	s.registerAndLogin(t, "Ana", "a@x.com", "secret")

	assert.Equal(t, http.StatusBadRequest, s.postJSON(t, "/api/login", map[string]string{"email": "a@x.com"}).Code)
	assert.Equal(t, http.StatusNotFound, s.postJSON(t, "/api/login", map[string]string{"email": "b@x.com", "password": "secret"}).Code)
	assert.Equal(t, http.StatusUnauthorized, s.postJSON(t, "/api/login", map[string]string{"email": "a@x.com", "password": "nope"}).Code)
	// byte-exact email matching
	assert.Equal(t, http.StatusNotFound, s.postJSON(t, "/api/login", map[string]string{"email": "A@X.COM", "password": "secret"}).Code)
	// legacy path
	assert.Equal(t, http.StatusOK, s.postJSON(t, "/login", map[string]string{"email": "a@x.com", "password": "secret"}).Code)
}

// countingRecorder records how many times the status line was written.
type countingRecorder struct {
	*httptest.ResponseRecorder
	writes int
}

func (r *countingRecorder) WriteHeader(code int) {
	r.writes++
	r.ResponseRecorder.WriteHeader(code)
}

func TestUploadWithoutTokenYieldsSingle401(t *testing.T) {
	s := newTestServer(t, Options{})

	for _, header := range []string{"", "Basic abc", "Bearer", "Token abc", "Bearer a b"} {
		req := newUploadRequest(t, "/api/upload", "", uploadFields{title: "Notes", fileName: "f.pdf", fileBody: "x"})
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := &countingRecorder{ResponseRecorder: httptest.NewRecorder()}
		s.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.Equal(t, 1, rec.writes, "header %q", header)
		assert.JSONEq(t, `{"error":"no token provided"}`, rec.Body.String())
	}
	assert.Empty(t, s.list(t))
}

func TestUploadWithInvalidToken(t *testing.T) {
	s := newTestServer(t, Options{})
	userID, _ := s.registerAndLogin(t, "Ana", "a@x.com", "secret")

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	forged, err := auth.NewTokenIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	forgedToken, err := forged.Issue(userID)
	require.NoError(t, err)

	for _, tok := range []string{expired, forgedToken, "garbage"} {
		rec := s.do(newUploadRequest(t, "/api/upload", tok, uploadFields{title: "Notes", fileName: "f.pdf", fileBody: "x"}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"invalid or expired token"}`, rec.Body.String())
	}
	assert.Empty(t, s.list(t))
}

func TestUploadTokenForUnknownUser(t *testing.T) {
	s := newTestServer(t, Options{})

	tok, err := s.issuer.Issue(4242)
	require.NoError(t, err)

	rec := s.do(newUploadRequest(t, "/api/upload", tok, uploadFields{title: "Notes", fileName: "f.pdf", fileBody: "x"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.list(t))
}

func TestUploadMissingTitleOrFile(t *testing.T) {
	s := newTestServer(t, Options{})
	_, token := s.registerAndLogin(t, "Ana", "a@x.com", "secret")

	rec := s.do(newUploadRequest(t, "/api/upload", token, uploadFields{fileName: "f.pdf", fileBody: "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(newUploadRequest(t, "/api/upload", token, uploadFields{title: "   ", fileName: "f.pdf", fileBody: "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(newUploadRequest(t, "/api/upload", token, uploadFields{title: "Notes"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{"title":"Notes"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusBadRequest, s.do(req).Code)

	assert.Empty(t, s.list(t))
}

func TestUploadIgnoresClientSuppliedUserID(t *testing.T) {
	s := newTestServer(t, Options{})
	anaID, anaToken := s.registerAndLogin(t, "Ana", "a@x.com", "secret")
	biaID, _ := s.registerAndLogin(t, "Bia", "b@x.com", "secret")
	require.NotEqual(t, anaID, biaID)

	rec := s.do(newUploadRequest(t, "/api/upload", anaToken, uploadFields{
		title:    "Notes",
		fileName: "f.pdf",
		fileBody: "x",
		extra:    map[string]string{"user_id": "2", "userId": "2"},
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	items := s.list(t)
	require.Len(t, items, 1)
	assert.Equal(t, anaID, items[0].UserID)
	assert.Equal(t, "Ana", items[0].UploaderName)
}

func TestListingNewestFirstWithResolvableURLs(t *testing.T) {
	s := newTestServer(t, Options{})
	_, token := s.registerAndLogin(t, "Ana", "a@x.com", "secret")

	const n = 5
	for i := 0; i < n; i++ {
		rec := s.do(newUploadRequest(t, "/api/upload", token, uploadFields{
			title:       "doc-" + string(rune('a'+i)),
			description: "d",
			course:      "c",
			fileName:    "same.pdf",
			fileBody:    "body-" + string(rune('a'+i)),
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	items := s.list(t)
	require.Len(t, items, n)
	refs := make(map[string]struct{})
	for i, item := range items {
		assert.Equal(t, "doc-"+string(rune('a'+n-1-i)), item.Title)
		if i > 0 {
			assert.Greater(t, items[i-1].ID, item.ID)
			assert.GreaterOrEqual(t, items[i-1].CreatedAt, item.CreatedAt)
		}
		refs[item.FileRef] = struct{}{}

		u := strings.TrimPrefix(item.URL, "http://files.example.com")
		require.NotEqual(t, item.URL, u)
		rec := s.do(httptest.NewRequest(http.MethodGet, u, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "body-"+string(rune('a'+n-1-i)), rec.Body.String())
	}
	assert.Len(t, refs, n)
}

func TestListingURLUsesForwardedProtoAndPublicURL(t *testing.T) {
	s := newTestServer(t, Options{})
	_, token := s.registerAndLogin(t, "Ana", "a@x.com", "secret")
	require.Equal(t, http.StatusCreated, s.do(newUploadRequest(t, "/upload", token, uploadFields{title: "Notes", fileName: "f.pdf", fileBody: "x"})).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/resumos", nil)
	req.Host = "api.example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.True(t, strings.HasPrefix(items[0].URL, "https://api.example.com/uploads/"), items[0].URL)

	withBase := newTestServer(t, Options{PublicURL: "https://cdn.example.com/"})
	_, token = withBase.registerAndLogin(t, "Ana", "a@x.com", "secret")
	require.Equal(t, http.StatusCreated, withBase.do(newUploadRequest(t, "/api/upload", token, uploadFields{title: "Notes", fileName: "f.pdf", fileBody: "x"})).Code)
	items = withBase.list(t)
	require.Len(t, items, 1)
	assert.Equal(t, "https://cdn.example.com/uploads/"+items[0].FileRef, items[0].URL)
}

func TestListingEmptyIsArray(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/resumos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServeFileNotFound(t *testing.T) {
	s := newTestServer(t, Options{})

	assert.Equal(t, http.StatusNotFound, s.do(httptest.NewRequest(http.MethodGet, "/uploads/missing.pdf", nil)).Code)
	assert.Equal(t, http.StatusNotFound, s.do(httptest.NewRequest(http.MethodGet, "/uploads/..hidden", nil)).Code)
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, Options{MaxUploadBytes: 512})
	_, token := s.registerAndLogin(t, "Ana", "a@x.com", "secret")

	rec := s.do(newUploadRequest(t, "/api/upload", token, uploadFields{title: "Notes", fileName: "f.pdf", fileBody: strings.Repeat("x", 4096)}))
	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
	assert.Empty(t, s.list(t))
}

func TestHealthAndCORS(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = s.do(httptest.NewRequest(http.MethodOptions, "/api/upload", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
