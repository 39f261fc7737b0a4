package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/importer"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{utils.NewValidationError("name", "is required"), http.StatusBadRequest},
		{fmt.Errorf("%w: phone", importer.ErrMissingColumns), http.StatusBadRequest},
		{models.ErrInvalidLogin, http.StatusUnauthorized},
		{models.ErrUserPending, http.StatusForbidden},
		{models.ErrForbidden, http.StatusForbidden},
		{utils.ErrorRecordNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: client name", models.ErrDuplicate), http.StatusConflict},
		{models.ErrLastAdmin, http.StatusConflict},
		{&models.InsufficientStockError{ItemCode: "SCF-1", Requested: 5, Available: 2}, http.StatusUnprocessableEntity},
		{models.ErrNegativeClosing, http.StatusUnprocessableEntity},
		{utils.ErrorServiceNotReady, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { respondError(c, "Test", "x", errors.New("dsn password leaked")) })
	r.GET("/y", func(c *gin.Context) { respondError(c, "Test", "y", utils.ErrorServiceNotReady) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/y", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestPathIDRejectsGarbage(t *testing.T) {
	r := gin.New()
	r.GET("/things/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/things/12", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, httptest.NewRequest(http.MethodGet, "/things/abc", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, httptest.NewRequest(http.MethodGet, "/things/-3", nil)).Code)
}

func TestQueryPeriod(t *testing.T) {
	var from, to time.Time
	r := gin.New()
	r.GET("/p", func(c *gin.Context) {
		var ok bool
		if from, to, ok = queryPeriod(c); ok {
			c.Status(http.StatusOK)
		}
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/p?from=2024-03-01&to=31/03/2024", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), to)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/p?from=2024-03-10&to=2024-03-01", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/p?from=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/p", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, from.Day())
	assert.False(t, to.Before(from))
}

func TestRoutesRequireUser(t *testing.T) {
	r := gin.New()
	Register(r.Group("/api"))

	for _, path := range []string{"/api/clients", "/api/challans", "/api/reports/dashboard", "/api/auth/me"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestImportTemplateCSV(t *testing.T) {
	r := gin.New()
	r.GET("/imports/:entity/template", importTemplate)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/imports/clients/template", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "clients_template.csv")
	rows, err := csv.NewReader(bytes.NewReader(w.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], "name")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/imports/widgets/template", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportFileRequiresFile(t *testing.T) {
	r := gin.New()
	r.POST("/imports/:entity", importFile)

	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	require.NoError(t, mp.WriteField("dry_run", "true"))
	require.NoError(t, mp.Close())
	req := httptest.NewRequest(http.MethodPost, "/imports/clients", &body)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, serve(r, req).Code)
}

func TestImportFileRejectsUnknownFormat(t *testing.T) {
	r := gin.New()
	r.POST("/imports/:entity", importFile)

	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	fw, err := mp.CreateFormFile("file", "clients.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("name\nAcme\n"))
	require.NoError(t, mp.Close())
	req := httptest.NewRequest(http.MethodPost, "/imports/clients", &body)
	req.Header.Set("Content-Type", mp.FormDataContentType())

	w := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), importer.ErrUnsupportedFormat.Error())
}

func pushBody(t *testing.T, msg interface{}) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	var envelope PushEnvelope
	envelope.Message.Data = data
	envelope.Message.ID = "pubsub-1"
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestPubSubPushAcksPoisonMessages(t *testing.T) {
	r := gin.New()
	r.POST("/pubsub", PubSubPush)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/pubsub", bytes.NewBufferString("not json")))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/pubsub", pushBody(t, config.PubSubMessage{EventType: models.EventClientChanged})))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPubSubPushProcessesEvent(t *testing.T) {
	r := gin.New()
	r.POST("/pubsub", PubSubPush)

	msg := config.PubSubMessage{ID: 3, BusinessId: "biz-1", EventType: models.EventClientChanged, ReferenceType: models.ReferenceTypeClient, ReferenceId: 8}
	w := serve(r, httptest.NewRequest(http.MethodPost, "/pubsub", pushBody(t, msg)))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOwnedKey(t *testing.T) {
	prefix := models.UploadObjectPrefix("biz-1")
	assert.True(t, ownedKey("biz-1", prefix+"challan/a.pdf"))
	assert.False(t, ownedKey("biz-1", models.UploadObjectPrefix("biz-2")+"challan/a.pdf"))
	assert.False(t, ownedKey("biz-1", prefix+"../biz-2/a.pdf"))
	assert.False(t, ownedKey("biz-1", ""))
}

func TestSanitizeSegmentAndExtension(t *testing.T) {
	assert.Equal(t, "challan_2", sanitizeSegment("challan_2/../"))
	assert.Equal(t, ".pdf", extensionFromMimeType("application/pdf"))
	assert.Equal(t, "", extensionFromMimeType("application/zip"))
}

func TestBindJSONReportsFieldErrors(t *testing.T) {
	type body struct {
		Name string `json:"name" binding:"required"`
		Qty  int    `json:"qty" binding:"min=1"`
	}
	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		var b body
		if !bindJSON(c, &b) {
			return
		}
		c.Status(http.StatusNoContent)
	})

	w := serve(r, httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString(`{"qty":0}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var out struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "invalid request", out.Error)
	assert.Equal(t, map[string]string{"Name": "required", "Qty": "min"}, out.Fields)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString(`{"name":`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "fields")

	w = serve(r, httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString(`{"name":"a","qty":2}`)))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestThumbnailableUsesSniffedType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.True(t, thumbnailable(utils.DetectUploadType("biz/docs/a.pdf", png)))
	assert.False(t, thumbnailable(utils.DetectUploadType("biz/docs/a.png", []byte("%PDF-1.4\n"))))
	assert.False(t, thumbnailable("image/webp"))
}

func TestErrAt(t *testing.T) {
	boom := errors.New("boom")
	assert.NoError(t, errAt(nil, 3))
	assert.Equal(t, boom, errAt([]error{nil, boom}, 1))
}

func TestOptionalDropsNotFound(t *testing.T) {
	v, err := optional[models.Client](nil, utils.ErrorRecordNotFound)
	assert.NoError(t, err)
	assert.Nil(t, v)

	_, err = optional[models.Client](nil, utils.ErrorServiceNotReady)
	assert.ErrorIs(t, err, utils.ErrorServiceNotReady)
}
