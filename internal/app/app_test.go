package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/patientflow/internal/handler/health"
	"github.com/jwalitptl/patientflow/internal/repository/memory"
	"github.com/jwalitptl/patientflow/internal/router"
	"github.com/jwalitptl/patientflow/pkg/ai"
	"github.com/jwalitptl/patientflow/pkg/auth"
	"github.com/jwalitptl/patientflow/pkg/metrics"
	"github.com/jwalitptl/patientflow/pkg/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAI struct{}

func (stubAI) Transcribe(ctx context.Context, audio io.Reader, filename string) (*ai.Transcription, error) {
	return &ai.Transcription{Text: "patient reports a sore throat", Duration: 12 * time.Second}, nil
}

func (stubAI) ExtractNotes(ctx context.Context, transcript string) (string, error) {
	return "```json\n{\"diagnosis\": \"Acute pharyngitis\", \"treatment_plan\": \"Rest and fluids\", \"confidence\": 0.9}\n```", nil
}

type Response struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	HTTP    int             `json:"-"`
}

func (r Response) IsSuccess() bool {
	return r.Status == "success"
}

func (r Response) GetString(key string) string {
	var m map[string]interface{}
	if err := json.Unmarshal(r.Data, &m); err != nil {
		return ""
	}
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

type testApp struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "patientflow")

	services := NewServices(Deps{
		Store:   memory.NewStore(),
		Metrics: m,
		Hasher:  security.NewBcryptHasher(bcrypt.MinCost),
		Tokens:  auth.NewJWTService(auth.Config{Secret: "flow-secret", Issuer: "patientflow", Expiry: time.Hour}),
		AI:      stubAI{},
	})
	checks := map[string]health.Checker{
		"database": health.CheckerFunc(func(context.Context) error { return nil }),
	}
	r := router.NewRouter(router.Config{RequestTimeout: 5 * time.Second}, services.Auth, m, services.Handlers(checks, reg))
	return &testApp{t: t, engine: r.Engine()}
}

func (a *testApp) send(req *http.Request, token string) Response {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	resp := Response{HTTP: w.Code}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return resp
}

func (a *testApp) makeRequest(method, path string, body interface{}, token string) Response {
	a.t.Helper()
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reqBody = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	return a.send(req, token)
}

func decode(t *testing.T, resp Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// registerHospital creates a hospital and returns its admin token.
func (a *testApp) registerHospital(name string) string {
	a.t.Helper()
	slug := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	resp := a.makeRequest("POST", "/auth/register", map[string]interface{}{
		"hospital_name":    name,
		"hospital_email":   "desk@" + slug + ".test",
		"hospital_phone":   "+1 555 0100",
		"admin_first_name": "Ada",
		"admin_last_name":  "Admin",
		"admin_email":      "admin@" + slug + ".test",
		"admin_password":   "s3cure-pass",
	}, "")
	require.Equal(a.t, http.StatusCreated, resp.HTTP, resp.Message)
	return a.login("admin@"+slug+".test", "s3cure-pass")
}

func (a *testApp) login(email, password string) string {
	a.t.Helper()
	resp := a.makeRequest("POST", "/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(a.t, http.StatusOK, resp.HTTP, resp.Message)
	token := resp.GetString("token")
	require.NotEmpty(a.t, token)
	return token
}

// staff creates a user with role and logs them in.
func (a *testApp) staff(adminToken, role string) (id, token string) {
	a.t.Helper()
	email := fmt.Sprintf("%s@citygeneral.test", strings.ToLower(role))
	resp := a.makeRequest("POST", "/staff", map[string]interface{}{
		"email":      email,
		"password":   "password123",
		"first_name": "Sam",
		"last_name":  "Staff",
		"role":       role,
	}, adminToken)
	require.Equal(a.t, http.StatusCreated, resp.HTTP, resp.Message)
	return resp.GetString("id"), a.login(email, "password123")
}

func (a *testApp) createPatient(token string) string {
	a.t.Helper()
	resp := a.makeRequest("POST", "/patients", map[string]interface{}{
		"first_name":    "Pat",
		"last_name":     "Doe",
		"date_of_birth": "1990-01-01",
		"gender":        "female",
		"phone":         "+1234567890",
	}, token)
	require.Equal(a.t, http.StatusCreated, resp.HTTP, resp.Message)
	return resp.GetString("id")
}

func (a *testApp) voice(token, appointmentID string) Response {
	a.t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(a.t, w.WriteField("appointmentId", appointmentID))
	require.NoError(a.t, w.WriteField("apply", "true"))
	part, err := w.CreateFormFile("audio", "consult.webm")
	require.NoError(a.t, err)
	_, err = part.Write([]byte("fake audio"))
	require.NoError(a.t, err)
	require.NoError(a.t, w.Close())

	req := httptest.NewRequest("POST", "/api/v1/voice/consultation", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return a.send(req, token)
}

func TestPatientJourney(t *testing.T) {
	a := newTestApp(t)
	adminToken := a.registerHospital("City General")
	_, nurseToken := a.staff(adminToken, "NURSE")
	doctorID, doctorToken := a.staff(adminToken, "DOCTOR")
	_, pharmacistToken := a.staff(adminToken, "PHARMACIST")

	patientID := a.createPatient(nurseToken)

	// Intake with vitals and automatic routing to the only doctor.
	resp := a.makeRequest("POST", "/appointments", map[string]interface{}{
		"patient_id":      patientID,
		"priority":        "URGENT",
		"chief_complaint": "sore throat",
		"auto_assign":     true,
		"vitals": map[string]interface{}{
			"blood_pressure_systolic":  120,
			"blood_pressure_diastolic": 80,
			"temperature":              38.2,
		},
	}, nurseToken)
	require.Equal(t, http.StatusCreated, resp.HTTP, resp.Message)
	appointmentID := resp.GetString("id")
	assert.Equal(t, "ASSIGNED", resp.GetString("status"))
	assert.Equal(t, doctorID, resp.GetString("assigned_doctor_id"))

	resp = a.makeRequest("GET", "/appointments/queue", nil, doctorToken)
	require.True(t, resp.IsSuccess(), resp.Message)
	var queue struct {
		Stats struct {
			Total  int `json:"total"`
			Urgent int `json:"urgent"`
		} `json:"stats"`
	}
	decode(t, resp, &queue)
	assert.Equal(t, 1, queue.Stats.Total)
	assert.Equal(t, 1, queue.Stats.Urgent)

	resp = a.makeRequest("POST", "/appointments/consultation", map[string]interface{}{
		"appointment_id": appointmentID,
		"action":         "start",
	}, doctorToken)
	require.Equal(t, http.StatusOK, resp.HTTP, resp.Message)
	assert.Equal(t, "IN_CONSULTATION", resp.GetString("status"))

	// Completing before a diagnosis exists is rejected.
	resp = a.makeRequest("POST", "/appointments/consultation", map[string]interface{}{
		"appointment_id": appointmentID,
		"action":         "complete",
	}, doctorToken)
	assert.Equal(t, http.StatusBadRequest, resp.HTTP)

	resp = a.voice(doctorToken, appointmentID)
	require.Equal(t, http.StatusOK, resp.HTTP, resp.Message)
	var result struct {
		Transcript string `json:"transcript"`
		Merge      struct {
			Changed   []string `json:"changed_fields"`
			Persisted bool     `json:"persisted"`
		} `json:"merge"`
	}
	decode(t, resp, &result)
	assert.Equal(t, "patient reports a sore throat", result.Transcript)
	assert.ElementsMatch(t, []string{"diagnosis", "treatment_plan"}, result.Merge.Changed)
	assert.True(t, result.Merge.Persisted)

	resp = a.makeRequest("POST", "/appointments/"+appointmentID+"/prescription", map[string]interface{}{
		"items": []map[string]interface{}{{
			"medication_name": "Amoxicillin",
			"dosage":          "500mg",
			"frequency":       "3x daily",
			"duration":        "7 days",
			"quantity":        21,
		}},
	}, doctorToken)
	require.Equal(t, http.StatusCreated, resp.HTTP, resp.Message)

	resp = a.makeRequest("POST", "/appointments/consultation", map[string]interface{}{
		"appointment_id": appointmentID,
		"action":         "complete",
	}, doctorToken)
	require.Equal(t, http.StatusOK, resp.HTTP, resp.Message)
	assert.Equal(t, "PENDING_PHARMACY", resp.GetString("status"))

	resp = a.makeRequest("GET", "/pharmacy/prescriptions", nil, pharmacistToken)
	require.True(t, resp.IsSuccess(), resp.Message)
	var pending []map[string]interface{}
	decode(t, resp, &pending)
	assert.Len(t, pending, 1)

	resp = a.makeRequest("POST", "/appointments/"+appointmentID+"/dispense", nil, pharmacistToken)
	require.Equal(t, http.StatusOK, resp.HTTP, resp.Message)
	assert.Equal(t, "COMPLETED", resp.GetString("status"))

	// Dispensing twice is a state error.
	resp = a.makeRequest("POST", "/appointments/"+appointmentID+"/dispense", nil, pharmacistToken)
	assert.Equal(t, http.StatusConflict, resp.HTTP)

	resp = a.makeRequest("GET", "/appointments/"+appointmentID+"/history", nil, nurseToken)
	require.True(t, resp.IsSuccess(), resp.Message)
	var history []struct {
		Type string `json:"type"`
	}
	decode(t, resp, &history)
	require.NotEmpty(t, history)
	assert.Equal(t, "created", history[0].Type)
	assert.Equal(t, "completed", history[len(history)-1].Type)

	resp = a.makeRequest("GET", "/audit-logs?page_size=5", nil, adminToken)
	require.True(t, resp.IsSuccess(), resp.Message)
	var logs struct {
		Items      []map[string]interface{} `json:"items"`
		Pagination struct {
			PageSize int `json:"page_size"`
			Total    int `json:"total"`
		} `json:"pagination"`
	}
	decode(t, resp, &logs)
	assert.Len(t, logs.Items, 5)
	assert.Equal(t, 5, logs.Pagination.PageSize)
	assert.Greater(t, logs.Pagination.Total, 5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "patientflow_queue_transitions_total")
}

func TestAccessControl(t *testing.T) {
	a := newTestApp(t)
	adminToken := a.registerHospital("City General")
	_, nurseToken := a.staff(adminToken, "NURSE")
	patientID := a.createPatient(nurseToken)

	resp := a.makeRequest("POST", "/appointments", map[string]interface{}{"patient_id": patientID}, nurseToken)
	require.Equal(t, http.StatusCreated, resp.HTTP, resp.Message)
	appointmentID := resp.GetString("id")
	assert.Equal(t, "CREATED", resp.GetString("status"))
	assert.Equal(t, "NORMAL", resp.GetString("priority"))

	t.Run("no token", func(t *testing.T) {
		resp := a.makeRequest("GET", "/patients", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.HTTP)
		assert.Equal(t, "error", resp.Status)
	})

	t.Run("wrong role", func(t *testing.T) {
		resp := a.makeRequest("GET", "/audit-logs", nil, nurseToken)
		assert.Equal(t, http.StatusForbidden, resp.HTTP)
	})

	t.Run("other hospital", func(t *testing.T) {
		otherAdmin := a.registerHospital("Riverside Clinic")
		resp := a.makeRequest("GET", "/appointments/"+appointmentID, nil, otherAdmin)
		assert.Equal(t, http.StatusNotFound, resp.HTTP)

		resp = a.makeRequest("GET", "/patients/"+patientID, nil, otherAdmin)
		assert.Equal(t, http.StatusNotFound, resp.HTTP)

		resp = a.makeRequest("POST", "/appointments/"+appointmentID+"/cancel", nil, otherAdmin)
		assert.Equal(t, http.StatusNotFound, resp.HTTP)
	})

	t.Run("validation", func(t *testing.T) {
		resp := a.makeRequest("POST", "/appointments", map[string]interface{}{
			"patient_id": patientID,
			"priority":   "WHENEVER",
		}, nurseToken)
		assert.Equal(t, http.StatusBadRequest, resp.HTTP)
		assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		token := a.login("nurse@citygeneral.test", "password123")
		resp := a.makeRequest("POST", "/auth/logout", nil, token)
		require.Equal(t, http.StatusOK, resp.HTTP, resp.Message)

		resp = a.makeRequest("GET", "/auth/me", nil, token)
		assert.Equal(t, http.StatusUnauthorized, resp.HTTP)
	})
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestApp(t)

	resp := a.makeRequest("GET", "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, resp.HTTP)

	resp = a.makeRequest("GET", "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, resp.HTTP)
}
