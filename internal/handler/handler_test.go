package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/auth"
	"eventgate/internal/checkin"
	"eventgate/internal/config"
	"eventgate/internal/console"
	"eventgate/internal/directory"
	"eventgate/internal/queue"
	"eventgate/internal/registration"
	"eventgate/internal/tally"
	"eventgate/internal/ticket"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "eventgate-test"
)

type fixture struct {
	router *gin.Engine
	store  *directory.Memory
	tally  *tally.Memory
	events *queue.InMemory
}

func newFixture(t *testing.T, requireAuth bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := directory.NewMemory()
	events := queue.NewInMemory(64)
	counts := tally.NewMemory()

	h := New(Deps{
		Registration: registration.NewService(store, ticket.NewGenerator("TMSS"), config.Event{Name: "Farewell", Date: "2025-11-27"},
			registration.Options{RequireAuthorization: requireAuth, SupportsStaff: true}),
		Checkin:      checkin.NewService(store, checkin.Options{SupportsStaff: true}),
		Console:      console.NewService(store),
		Events:       events,
		Tally:        counts,
		Operators:    Operators{Issuer: testIssuer, SigningKey: testKey, TTL: time.Hour},
		StoreHealthy: func(ctx context.Context) bool { return store.Ping(ctx) == nil },
	})
	r := NewRouter(h, RouterOptions{Operator: auth.OperatorAuth(testKey, testIssuer), SupportsStaff: true})
	return &fixture{router: r, store: store, tally: counts, events: events}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func barcodeOf(t *testing.T, body map[string]any) string {
	t.Helper()
	tk, ok := body["ticket"].(map[string]any)
	require.True(t, ok, "response has no ticket: %v", body)
	code, _ := tk["barcode"].(string)
	require.NotEmpty(t, code)
	return code
}

func TestRegisterAndCheckInScenarios(t *testing.T) {
	f := newFixture(t, false)
	student := gin.H{"name": "Thandi", "surname": "Mkhize", "className": "12A"}

	// A
	w, body := f.do(t, http.MethodPost, "/register", student)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	barcode := barcodeOf(t, body)
	assert.Equal(t, false, body["ticket"].(map[string]any)["is_used"])
	assert.Equal(t, "Thandi Mkhize", body["person"].(map[string]any)["name"])
	assert.Equal(t, directory.Counts{Classes: 1, Students: 1, Tickets: 1}, f.store.Counts())

	// B
	w, body = f.do(t, http.MethodPost, "/register", student)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, TagDuplicate, body["error"])
	assert.NotEmpty(t, body["details"])
	assert.Equal(t, directory.Counts{Classes: 1, Students: 1, Tickets: 1}, f.store.Counts())

	// C
	w, body = f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": barcode})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["person"].(map[string]any)["attended"])
	assert.Equal(t, "admin", body["scanned_by"])
	assert.Equal(t, 1, f.store.Counts().Attendance)

	// D
	w, body = f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": barcode})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, TagAlreadyUsed, body["error"])
	assert.Equal(t, "Thandi Mkhize", body["person"].(map[string]any)["name"])
	assert.Equal(t, 1, f.store.Counts().Attendance)

	// E
	w, body = f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": "TMSS000000FFFF"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, TagTicketNotFound, body["error"])
}

func TestStaffNotOnAllowList(t *testing.T) {
	f := newFixture(t, true)

	w, body := f.do(t, http.MethodPost, "/staff/register", gin.H{"initials": "Z", "surname": "Nobody", "className": "12A"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, TagNotAuthorized, body["error"])
	assert.Equal(t, directory.Counts{}, f.store.Counts())
}

func TestStaffRegisterAndCheckIn(t *testing.T) {
	f := newFixture(t, false)
	f.store.AddAuthorizedStaff(directory.StaffMember{Initials: "F", InitialsSanitized: "F", Surname: "NDLOVU", Designation: "DEPUTY PRINCIPAL"})

	w, body := f.do(t, http.MethodPost, "/staff/register", gin.H{"initials": "f.", "surname": "Ndlovu", "designation": "Deputy Principal"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	barcode := barcodeOf(t, body)

	w, body = f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": barcode, "method": "manual"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "staff", body["kind"])
	assert.Equal(t, "manual", body["method"])
	assert.Equal(t, 1, f.store.Counts().StaffAttendance)
}

func TestRegisterValidationWritesNothing(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		name string
		body any
		tag  string
	}{
		{"missing surname", gin.H{"name": "Thandi", "className": "12A"}, TagValidation},
		{"blank class", gin.H{"name": "Thandi", "surname": "Mkhize", "className": "  "}, TagValidation},
		{"not json", nil, TagValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, http.MethodPost, "/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.tag, body["error"])
		})
	}
	assert.Equal(t, directory.Counts{}, f.store.Counts())
}

func TestRegisterNotAuthorized(t *testing.T) {
	f := newFixture(t, true)
	w, body := f.do(t, http.MethodPost, "/register", gin.H{"name": "Thandi", "surname": "Mkhize", "className": "12A"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, TagNotAuthorized, body["error"])
	assert.Equal(t, directory.Counts{}, f.store.Counts())
}

func TestCheckInValidation(t *testing.T) {
	f := newFixture(t, false)

	w, body := f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, TagValidation, body["error"])

	w, body = f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": "X", "method": "telepathy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, TagValidation, body["error"])
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/register", "/checkin", "/console-delete", "/staff/register"} {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			w, body := f.do(t, method, path, nil)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", method, path)
			assert.Equal(t, TagMethodNotAllowed, body["error"])
		}
	}
}

func TestServiceUnavailableWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(New(Deps{}), RouterOptions{SupportsStaff: true})
	f := &fixture{router: r}

	for _, path := range []string{"/register", "/staff/register", "/checkin", "/console-delete"} {
		w, body := f.do(t, http.MethodPost, path, gin.H{})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, TagServiceUnavailable, body["error"])
	}

	w, _ := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestOperatorTokenRecordedAsScannedBy(t *testing.T) {
	f := newFixture(t, false)

	w, body := f.do(t, http.MethodPost, "/operators/register", gin.H{"operator": "gate-north", "station": "north"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)

	_, body = f.do(t, http.MethodPost, "/register", gin.H{"name": "Sipho", "surname": "Dlamini", "className": "11B"})
	barcode := barcodeOf(t, body)

	w, body = f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": barcode}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "gate-north", body["scanned_by"])

	w, _ = f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": barcode}, "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = f.do(t, http.MethodPost, "/operators/register", gin.H{"operator": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, TagValidation, body["error"])
}

func TestOperatorRegistrationRequiresSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(Deps{Operators: Operators{Issuer: testIssuer, SigningKey: testKey, TTL: time.Hour, Secret: "door-secret"}})
	f := &fixture{router: NewRouter(h, RouterOptions{})}

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"missing secret", nil, http.StatusUnauthorized},
		{"wrong secret", []string{OperatorSecretHeader, "guess"}, http.StatusUnauthorized},
		{"matching secret", []string{OperatorSecretHeader, "door-secret"}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, http.MethodPost, "/operators/register", gin.H{"operator": "gate-north"}, tt.header...)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, TagUnauthorized, body["error"])
				assert.Nil(t, body["access_token"])
			} else {
				assert.NotEmpty(t, body["access_token"])
			}
		})
	}
}

func TestConsoleDelete(t *testing.T) {
	f := newFixture(t, false)
	_, body := f.do(t, http.MethodPost, "/register", gin.H{"name": "Thandi", "surname": "Mkhize", "className": "12A"})
	id := body["person"].(map[string]any)["id"].(string)

	w, body := f.do(t, http.MethodPost, "/console-delete", gin.H{"type": "student", "id": id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 0, f.store.Counts().Students)

	w, body = f.do(t, http.MethodPost, "/console-delete", gin.H{"type": "teacher", "id": id})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, TagValidation, body["error"])

	w, _ = f.do(t, http.MethodPost, "/console-delete", gin.H{"type": "student"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsFollowQueue(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tally.Run(ctx, f.events, f.tally) }()

	_, body := f.do(t, http.MethodPost, "/register", gin.H{"name": "Thandi", "surname": "Mkhize", "className": "12A"})
	barcode := barcodeOf(t, body)
	f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": barcode})
	f.do(t, http.MethodPost, "/checkin", gin.H{"barcode": barcode})

	require.Eventually(t, func() bool {
		s, _ := f.tally.Snapshot(ctx)
		return s.Get(queue.TypeRejected, "") == 1
	}, time.Second, 5*time.Millisecond)

	w, body := f.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["registered"].(map[string]any)["student"])
	assert.Equal(t, float64(1), body["checked_in"].(map[string]any)["student"])
	assert.Equal(t, float64(1), body["rejected"])
}
