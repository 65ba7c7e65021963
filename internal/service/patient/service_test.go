package patient

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository/memory"
	"github.com/jwalitptl/patientflow/internal/service/audit"
	"github.com/jwalitptl/patientflow/internal/service/event"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	auditor := audit.NewAuditLogger(audit.NewService(store.Audit()))
	svc := NewService(store.Patients(), auditor, event.NewService(store.Outbox()))
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc, store
}

func nurse(hospital uuid.UUID) *model.Principal {
	return &model.Principal{UserID: uuid.New(), HospitalID: hospital, Role: model.RoleNurse}
}

func request() model.CreatePatientRequest {
	return model.CreatePatientRequest{
		FirstName:   " Asha ",
		LastName:    "Rao",
		DateOfBirth: "1988-02-14",
		Gender:      model.GenderFemale,
		Phone:       "5550101010",
		BloodGroup:  "O+",
	}
}

func TestPatientNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^PAT-[0-9A-F]{8}$`)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, pattern, NewPatientNumber())
	}
}

func TestRegister(t *testing.T) {
	svc, store := newService(t)
	actor := nurse(uuid.New())

	p, err := svc.Register(context.Background(), actor, request())
	require.NoError(t, err)
	assert.Equal(t, "Asha", p.FirstName)
	assert.Equal(t, actor.HospitalID, p.HospitalID)
	assert.Equal(t, model.PatientStatusActive, p.Status)
	assert.Equal(t, time.Date(1988, 2, 14, 0, 0, 0, 0, time.UTC), p.DateOfBirth)
	require.NotNil(t, p.RegisteredByID)
	assert.Equal(t, actor.UserID, *p.RegisteredByID)

	events := store.Pending()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPatientRegistered, events[0].EventType)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	actor := nurse(uuid.New())

	cases := map[string]func(*model.CreatePatientRequest){
		"missing name":  func(r *model.CreatePatientRequest) { r.LastName = " " },
		"bad date":      func(r *model.CreatePatientRequest) { r.DateOfBirth = "14/02/1988" },
		"future date":   func(r *model.CreatePatientRequest) { r.DateOfBirth = "2030-01-01" },
		"unknown value": func(r *model.CreatePatientRequest) { r.Gender = "robot" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := request()
			mutate(&req)
			_, err := svc.Register(context.Background(), actor, req)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation), err)
		})
	}
}

func TestGetIsHospitalScoped(t *testing.T) {
	svc, _ := newService(t)
	actor := nurse(uuid.New())
	p, err := svc.Register(context.Background(), actor, request())
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), actor.HospitalID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.PatientNumber, got.PatientNumber)

	_, err = svc.Get(context.Background(), uuid.New(), p.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListSearchAndPaging(t *testing.T) {
	svc, _ := newService(t)
	actor := nurse(uuid.New())
	other := nurse(uuid.New())
	ctx := context.Background()

	for _, name := range []string{"Asha", "Bilal", "Chen"} {
		req := request()
		req.FirstName = name
		_, err := svc.Register(ctx, actor, req)
		require.NoError(t, err)
	}
	_, err := svc.Register(ctx, other, request())
	require.NoError(t, err)

	all, total, err := svc.List(ctx, actor.HospitalID, "", model.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	found, total, err := svc.List(ctx, actor.HospitalID, "bil", model.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Bilal", found[0].FirstName)

	page, total, err := svc.List(ctx, actor.HospitalID, "", model.Pagination{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)

	none, _, err := svc.List(ctx, actor.HospitalID, "zzz", model.Pagination{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpdate(t *testing.T) {
	svc, store := newService(t)
	actor := nurse(uuid.New())
	ctx := context.Background()
	p, err := svc.Register(ctx, actor, request())
	require.NoError(t, err)

	phone, inactive := "5559999999", model.PatientStatusInactive
	updated, err := svc.Update(ctx, actor, p.ID, model.UpdatePatientRequest{Phone: &phone, Status: &inactive})
	require.NoError(t, err)
	assert.Equal(t, phone, updated.Phone)
	assert.Equal(t, model.PatientStatusInactive, updated.Status)

	logs, _, err := store.Audit().List(ctx, model.AuditFilter{Action: model.AuditActionUpdate, EntityID: p.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, string(logs[0].Changes), "5559999999")

	blank := ""
	_, err = svc.Update(ctx, actor, p.ID, model.UpdatePatientRequest{FirstName: &blank})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = svc.Update(ctx, nurse(uuid.New()), p.ID, model.UpdatePatientRequest{Phone: &phone})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
