package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"otmsite/internal/auth"
	"otmsite/internal/config"
	"otmsite/internal/contacts"
	"otmsite/internal/database"
	"otmsite/internal/encryption"
	"otmsite/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	responseErr error
	responses   []string
}

func (n *recordingNotifier) SendContactNotification(context.Context, models.Contact) error {
	return nil
}

func (n *recordingNotifier) SendContactAutoResponse(context.Context, models.Contact) error {
	return nil
}

func (n *recordingNotifier) SendContactResponse(_ context.Context, _ models.Contact, text, _ string) error {
	n.responses = append(n.responses, text)
	return n.responseErr
}

type adminFixture struct {
	e        *echo.Echo
	store    *contacts.Service
	notifier *recordingNotifier
	token    string
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	repo := database.NewFileRepository(filepath.Join(t.TempDir(), "contacts.json"), zerolog.Nop())
	codec := encryption.NewCodec("handler-test-secret", true, zerolog.Nop())
	notifier := &recordingNotifier{}
	store := contacts.NewService(repo, codec, notifier, "otmeducation.com", zerolog.Nop())

	authManager := auth.NewManager(&config.Config{AdminUsername: "admin", AdminPassword: "secret"})
	token, err := authManager.Authenticate("admin", "secret")
	require.NoError(t, err)

	e := echo.New()
	e.POST("/api/admin/login", AdminLoginHandler(authManager))
	admin := e.Group("/api/admin", auth.Middleware(authManager))
	admin.POST("/logout", AdminLogoutHandler(authManager))
	admin.GET("/contacts", ListContactsHandler(store))
	admin.GET("/contacts/:id", GetContactHandler(store))
	admin.POST("/contacts/:id/status", UpdateContactStatusHandler(store))
	admin.DELETE("/contacts/:id", DeleteContactHandler(store))
	admin.DELETE("/contacts/:id/messages", DeleteResponsesHandler(store))
	admin.POST("/merge-chats", MergeChatsHandler(store))
	admin.GET("/diagnose", DiagnoseHandler(store))

	return &adminFixture{e: e, store: store, notifier: notifier, token: token}
}

func (f *adminFixture) do(t *testing.T, method, path, body string) (int, models.AdminResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var resp models.AdminResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func (f *adminFixture) seed(t *testing.T, email, message string) models.Contact {
	t.Helper()
	result, err := f.store.AddContact(context.Background(), contacts.NewContact{
		Name:    "Jane",
		Email:   email,
		Message: message,
	})
	require.NoError(t, err)
	return result.Contact
}

func TestAdminLoginHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		wantToken      bool
	}{
		{"valid credentials", `{"username":"admin","password":"secret"}`, http.StatusOK, true},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized, false},
		{"malformed body", `{"username":`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(t)
			req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			f.e.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var resp models.AdminAuthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantToken, resp.Token != "")
		})
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newAdminFixture(t)
	f.token = "forged"

	code, resp := f.do(t, http.MethodGet, "/api/admin/contacts", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)
}

func TestAdminLogoutHandler(t *testing.T) {
	f := newAdminFixture(t)

	code, _ := f.do(t, http.MethodPost, "/api/admin/logout", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodGet, "/api/admin/contacts", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestListAndGetContactHandlers(t *testing.T) {
	f := newAdminFixture(t)
	seeded := f.seed(t, "jane@x.com", "Hi")

	code, resp := f.do(t, http.MethodGet, "/api/admin/contacts", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Contacts, 1)
	assert.Equal(t, "jane@x.com", resp.Contacts[0].Email)
	assert.Equal(t, "Hi", resp.Contacts[0].Message)

	code, resp = f.do(t, http.MethodGet, "/api/admin/contacts/"+seeded.ID, "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Contact)
	assert.Equal(t, seeded.ID, resp.Contact.ID)

	code, resp = f.do(t, http.MethodGet, "/api/admin/contacts/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
}

func TestUpdateContactStatusHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		sendErr        error
		missing        bool
		expectedStatus int
		wantMessage    string
		wantEmailError bool
		wantResponses  int
	}{
		{
			name:           "status only",
			body:           `{"status":"archived"}`,
			expectedStatus: http.StatusOK,
			wantMessage:    "Status updated",
		},
		{
			name:           "status with response",
			body:           `{"status":"responded","response":"We'll call you"}`,
			expectedStatus: http.StatusOK,
			wantMessage:    "Response saved",
			wantResponses:  1,
		},
		{
			name:           "response saved when email fails",
			body:           `{"status":"responded","response":"We'll call you"}`,
			sendErr:        errors.New("smtp down"),
			expectedStatus: http.StatusOK,
			wantMessage:    "Response saved but the email could not be sent",
			wantEmailError: true,
			wantResponses:  1,
		},
		{
			name:           "missing status",
			body:           `{"status":""}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown contact",
			body:           `{"status":"archived"}`,
			missing:        true,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(t)
			f.notifier.responseErr = tt.sendErr
			seeded := f.seed(t, "jane@x.com", "Hi")
			id := seeded.ID
			if tt.missing {
				id = "missing"
			}

			code, resp := f.do(t, http.MethodPost, "/api/admin/contacts/"+id+"/status", tt.body)
			assert.Equal(t, tt.expectedStatus, code)
			if tt.expectedStatus != http.StatusOK {
				assert.False(t, resp.Success)
				return
			}

			assert.True(t, resp.Success)
			assert.Equal(t, tt.wantMessage, resp.Message)
			assert.Equal(t, tt.wantEmailError, resp.EmailError != "")
			require.NotNil(t, resp.Contact)
			assert.Len(t, resp.Contact.Responses, tt.wantResponses)
			assert.Len(t, f.notifier.responses, tt.wantResponses)
		})
	}
}

func TestDeleteHandlers(t *testing.T) {
	f := newAdminFixture(t)
	seeded := f.seed(t, "jane@x.com", "Hi")
	f.seed(t, "jane@x.com", "Second")

	code, resp := f.do(t, http.MethodDelete, "/api/admin/contacts/"+seeded.ID+"/messages", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Contact)
	assert.Empty(t, resp.Contact.Responses)

	code, _ = f.do(t, http.MethodDelete, "/api/admin/contacts/"+seeded.ID, "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodDelete, "/api/admin/contacts/"+seeded.ID, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMergeChatsHandler(t *testing.T) {
	f := newAdminFixture(t)
	f.seed(t, "jane@x.com", "Hi")

	code, resp := f.do(t, http.MethodPost, "/api/admin/merge-chats", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "No chats needed to be merged", resp.Message)
}

func TestDiagnoseHandler(t *testing.T) {
	f := newAdminFixture(t)
	f.seed(t, "jane@x.com", "Hi")
	f.seed(t, "jane@x.com", "Again")

	code, resp := f.do(t, http.MethodGet, "/api/admin/diagnose", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Report)
	assert.Equal(t, 1, resp.Report.Contacts)
	assert.Equal(t, 1, resp.Report.Responses)
	assert.Zero(t, resp.Report.PlaintextFields)
}
