package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"welfare-server-go/auth"
	"welfare-server-go/db"
	"welfare-server-go/models"
	"welfare-server-go/photos"
	"welfare-server-go/service"
)

type testServer struct {
	router *gin.Engine
	auth   *auth.Service
	redis  *miniredis.Miniredis
	photos string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	log := zap.NewNop()

	store, err := db.NewSQLite(filepath.Join(dir, "welfare.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sessions := db.NewRedisService(client, log)

	uploads := filepath.Join(dir, "uploads")
	ps, err := photos.NewStore(uploads, 1024)
	require.NoError(t, err)

	authSvc := auth.NewService(store, sessions, time.Hour, log)
	_, err = authSvc.EnsureAdmin(context.Background(), "admin", "admin123")
	require.NoError(t, err)

	h := NewAPIHandler(service.NewHouseholds(store, ps, log), authSvc, sessions, log)
	h.now = func() time.Time { return time.Date(2025, 12, 24, 9, 0, 0, 0, time.UTC) }

	return &testServer{router: NewRouter(h), auth: authSvc, redis: mr, photos: uploads}
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return s.do(t, method, path, token, body, "application/json")
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.doJSON(t, http.MethodPost, "/api/login", "", auth.Credentials{Username: username, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	return sess.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

var household = models.HouseholdInput{
	Name:          "Siti Aminah",
	Address:       "Dusun Krajan RT 02",
	Education:     "SD",
	NumChildren:   4,
	MonthlyIncome: 1_200_000,
	Occupation:    "Buruh / Tani / Pekerja kasar",
}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/ping", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/options", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	opts := decode[map[string][]string](t, w)
	assert.Equal(t, models.EducationLevels, opts["education"])
	assert.Len(t, opts["occupations"], 5)

	w = s.do(t, http.MethodGet, "/api/households", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/households", "bogus", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPingReportsRedisOutage(t *testing.T) {
	s := newTestServer(t)
	s.redis.Close()

	w := s.do(t, http.MethodGet, "/api/ping", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.doJSON(t, http.MethodPost, "/api/login", "", auth.Credentials{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.doJSON(t, http.MethodPost, "/api/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "field Password is required")

	w = s.doJSON(t, http.MethodPost, "/api/login", "", auth.Credentials{Username: "admin", Password: "admin123"})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// the cookie alone authenticates
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"admin"`)

	token := cookies[0].Value
	w = s.do(t, http.MethodPost, "/api/logout", token, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/me", token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHouseholdCRUD(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")

	w := s.doJSON(t, http.MethodPost, "/api/households", token, household)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Household](t, w)
	assert.Equal(t, models.Miskin, created.Classification)

	// classification in the body is ignored
	w = s.doJSON(t, http.MethodPost, "/api/households", token, map[string]any{
		"name": "Dewi", "education": "S1 ke atas", "num_children": 1,
		"monthly_income": 9_000_000, "occupation": "PNS / Profesional", "classification": "Miskin",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.Kaya, decode[models.Household](t, w).Classification)

	w = s.doJSON(t, http.MethodPost, "/api/households", token, models.HouseholdInput{Name: "x", Education: "SMA", Occupation: "Pengangguran"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "field Education must be one of")

	w = s.do(t, http.MethodGet, "/api/households/"+itoa(created.ID), token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Siti Aminah", decode[models.Household](t, w).Name)

	upd := household
	upd.MonthlyIncome = 5_000_000
	upd.Occupation = "Pegawai swasta"
	w = s.doJSON(t, http.MethodPut, "/api/households/"+itoa(created.ID), token, upd)
	require.Equal(t, http.StatusOK, w.Code)
	// 60 + 10 - 20 + 30
	assert.Equal(t, models.Menengah, decode[models.Household](t, w).Classification)

	w = s.do(t, http.MethodGet, "/api/households?search=siti", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Household](t, w), 1)

	w = s.do(t, http.MethodGet, "/api/households?classification=Kaya", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Household](t, w), 1)

	w = s.do(t, http.MethodGet, "/api/households?classification=Sultan", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/summary", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Summary{Total: 2, Menengah: 1, Kaya: 1}, decode[models.Summary](t, w))

	w = s.do(t, http.MethodDelete, "/api/households/"+itoa(created.ID), token, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/households/"+itoa(created.ID), token, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/households/abc", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteByName(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")

	for i := 0; i < 2; i++ {
		w := s.doJSON(t, http.MethodPost, "/api/households", token, household)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodDelete, "/api/households", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/households?name=Siti%20Aminah", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, w)["deletedCount"])
}

func TestPhotoUpload(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")

	w := s.doJSON(t, http.MethodPost, "/api/households", token, household)
	require.Equal(t, http.StatusCreated, w.Code)
	id := itoa(decode[models.Household](t, w).ID)

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{7}, 40)...)
	body, ct := multipartBody(t, "photo", "foto.png", png)
	w = s.do(t, http.MethodPost, "/api/households/"+id+"/photo", token, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasSuffix(decode[models.Household](t, w).ImagePath, ".png"))

	w = s.do(t, http.MethodGet, "/api/households/"+id+"/photo", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, png, w.Body.Bytes())

	body, ct = multipartBody(t, "photo", "foto.txt", []byte("hello there"))
	w = s.do(t, http.MethodPost, "/api/households/"+id+"/photo", token, body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	body, ct = multipartBody(t, "photo", "big.png", append(png, make([]byte, 2048)...))
	w = s.do(t, http.MethodPost, "/api/households/"+id+"/photo", token, body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	body, ct = multipartBody(t, "photo", "foto.png", png)
	w = s.do(t, http.MethodPost, "/api/households/999/photo", token, body, ct)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPhotoFileMissing(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")

	w := s.doJSON(t, http.MethodPost, "/api/households", token, household)
	require.Equal(t, http.StatusCreated, w.Code)
	id := itoa(decode[models.Household](t, w).ID)

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{7}, 40)...)
	body, ct := multipartBody(t, "photo", "foto.png", png)
	w = s.do(t, http.MethodPost, "/api/households/"+id+"/photo", token, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	name := decode[models.Household](t, w).ImagePath

	require.NoError(t, os.Remove(filepath.Join(s.photos, name)))

	w = s.do(t, http.MethodGet, "/api/households/"+id+"/photo", token, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClassifyPreview(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")

	w := s.doJSON(t, http.MethodPost, "/api/classify", token, map[string]any{
		"education": "SMA/SMK", "num_children": 1, "monthly_income": 3_000_000, "occupation": "Wiraswasta kecil",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"classification":"Menengah"`)
	assert.Contains(t, w.Body.String(), `"total":90`)

	w = s.do(t, http.MethodGet, "/api/summary", token, nil, "")
	assert.Equal(t, models.Summary{}, decode[models.Summary](t, w), "preview stores nothing")
}

func TestImportExport(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"name", "address", "education", "num_children", "monthly_income", "occupation"},
		{"Rina", "Jl. Mawar", "Diploma", 2, 4500000, "Pegawai swasta"},
		{"Tono", "", "SD", "dua", 0, "Pengangguran"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	xlsx, err := f.WriteToBuffer()
	require.NoError(t, err)
	f.Close()

	body, ct := multipartBody(t, "file", "data.xlsx", xlsx.Bytes())
	w := s.do(t, http.MethodPost, "/api/import/households", token, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[struct {
		Inserted int `json:"inserted"`
		Failed   []struct {
			Row int `json:"row"`
		} `json:"failed"`
	}](t, w)
	assert.Equal(t, 1, res.Inserted)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 3, res.Failed[0].Row)

	body, ct = multipartBody(t, "file", "data.csv", []byte("name\nBudi\n"))
	w = s.do(t, http.MethodPost, "/api/import/households", token, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/export/excel?note=Q4", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxMime, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="laporan_kemiskinan_2025-12-24.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = s.do(t, http.MethodGet, "/api/export/pdf", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pdfMime, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="laporan_kemiskinan_2025-12-24.pdf"`, w.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin123")

	w := s.doJSON(t, http.MethodPost, "/api/users", admin, auth.NewUser{Username: "operator", Password: "rahasia", Role: models.RoleUser})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "rahasia")
	assert.NotContains(t, w.Body.String(), "password")

	w = s.doJSON(t, http.MethodPost, "/api/users", admin, auth.NewUser{Username: "operator", Password: "rahasia", Role: models.RoleUser})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.doJSON(t, http.MethodPost, "/api/users", admin, auth.NewUser{Username: "x", Password: "1", Role: "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/users", admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.User](t, w), 2)

	operator := s.login(t, "operator", "rahasia")
	w = s.do(t, http.MethodGet, "/api/users", operator, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// regular users still manage households
	w = s.doJSON(t, http.MethodPost, "/api/households", operator, household)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSessionExpiry(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")

	s.redis.FastForward(2 * time.Hour)
	w := s.do(t, http.MethodGet, "/api/me", token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
