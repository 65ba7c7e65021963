package queue

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	"github.com/jwalitptl/patientflow/internal/repository/memory"
	"github.com/jwalitptl/patientflow/internal/service/audit"
	"github.com/jwalitptl/patientflow/internal/service/event"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/metrics"
)

var (
	baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	doctorA  = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	doctorB  = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	doctorC  = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	engine   *Engine
	metrics  *metrics.Metrics
	hospital uuid.UUID
	patient  uuid.UUID
	nurse    uuid.UUID
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	m := metrics.NewTest()
	auditor := audit.NewAuditLogger(audit.NewService(store.Audit()))
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		metrics:  m,
		hospital: uuid.New(),
		clock:    baseTime.Add(time.Hour),
	}
	f.engine = NewEngine(store.Appointments(), store.Users(), auditor, event.NewService(store.Outbox()), m)
	f.engine.now = func() time.Time { return f.clock }

	patient := &model.Patient{HospitalID: f.hospital, PatientNumber: "PAT-00000001", FirstName: "Asha", LastName: "Rao"}
	require.NoError(t, store.Patients().Create(f.ctx, patient))
	f.patient = patient.ID
	f.nurse = f.addUser(uuid.New(), model.RoleNurse, true).ID
	return f
}

func (f *fixture) addUser(id uuid.UUID, role model.Role, available bool) *model.User {
	f.t.Helper()
	u := &model.User{
		Base:        model.Base{ID: id},
		HospitalID:  f.hospital,
		Email:       id.String() + "@clinic.test",
		FirstName:   "Sam",
		LastName:    id.String()[len(id.String())-1:],
		Role:        role,
		IsActive:    true,
		IsAvailable: available,
	}
	require.NoError(f.t, f.store.Users().Create(f.ctx, u))
	return u
}

func (f *fixture) addDoctor(id uuid.UUID, available bool) *model.User {
	return f.addUser(id, model.RoleDoctor, available)
}

func (f *fixture) addAppointment(status model.AppointmentStatus, priority model.Priority, doctor *uuid.UUID, createdAt time.Time) *model.Appointment {
	f.t.Helper()
	apt := &model.Appointment{
		Base:              model.Base{CreatedAt: createdAt},
		AppointmentNumber: "APT-" + uuid.NewString()[:8],
		HospitalID:        f.hospital,
		PatientID:         f.patient,
		Status:            status,
		Priority:          priority,
		AssignedDoctorID:  doctor,
	}
	require.NoError(f.t, f.store.Appointments().Create(f.ctx, apt))
	return apt
}

func (f *fixture) doctor(id uuid.UUID) *model.User {
	f.t.Helper()
	u, err := f.store.Users().Get(f.ctx, id)
	require.NoError(f.t, err)
	return u
}

func (f *fixture) appointment(id uuid.UUID) *model.Appointment {
	f.t.Helper()
	a, err := f.store.Appointments().Get(f.ctx, id)
	require.NoError(f.t, err)
	return a
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func assertDoctorInvariant(t *testing.T, apt *model.Appointment) {
	t.Helper()
	assert.Equal(t, apt.Status.HoldsDoctor(), apt.AssignedDoctorID != nil, "status %s", apt.Status)
}

func TestConsultationLifecycle(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	f.addDoctor(doctorB, true)
	apt := f.addAppointment(model.AppointmentStatusCreated, model.PriorityNormal, nil, baseTime)

	temp := 37.2
	got, err := f.engine.RecordVitals(f.ctx, apt.ID, f.nurse, &model.Vitals{Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusVitalsRecorded, got.Status)
	require.NotNil(t, got.VitalsRecordedAt)
	assertDoctorInvariant(t, got)

	got, err = f.engine.AssignDoctor(f.ctx, apt.ID, ptr(doctorA), f.nurse)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusAssigned, got.Status)
	assert.Equal(t, doctorA, *got.AssignedDoctorID)
	assert.True(t, f.doctor(doctorA).IsAvailable)
	assert.Nil(t, f.doctor(doctorA).CurrentAppointmentID)
	assertDoctorInvariant(t, got)

	got, err = f.engine.StartConsultation(f.ctx, apt.ID, doctorA)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInConsultation, got.Status)
	require.NotNil(t, got.ConsultationStartedAt)
	assert.Equal(t, apt.ID, *f.doctor(doctorA).CurrentAppointmentID)
	assert.True(t, f.doctor(doctorA).IsAvailable)

	_, err = f.engine.StartConsultation(f.ctx, apt.ID, doctorB)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotAssigned))

	got, err = f.engine.CompleteConsultation(f.ctx, apt.ID, doctorA, Outcome{HasPendingPrescription: true})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPendingPharmacy, got.Status)
	assert.NotNil(t, got.ConsultationCompletedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, f.doctor(doctorA).CurrentAppointmentID)
	assertDoctorInvariant(t, got)

	got, err = f.engine.Dispense(f.ctx, apt.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(*got.ConsultationCompletedAt))
	assertDoctorInvariant(t, f.appointment(apt.ID))
}

func TestRecordVitalsRequiresCreated(t *testing.T) {
	f := newFixture(t)
	apt := f.addAppointment(model.AppointmentStatusVitalsRecorded, model.PriorityNormal, nil, baseTime)

	_, err := f.engine.RecordVitals(f.ctx, apt.ID, f.nurse, &model.Vitals{})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))

	_, err = f.engine.RecordVitals(f.ctx, uuid.New(), f.nurse, &model.Vitals{})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.engine.RecordVitals(f.ctx, apt.ID, f.nurse, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestAssignWithNoAvailableDoctor(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, false)
	apt := f.addAppointment(model.AppointmentStatusVitalsRecorded, model.PriorityUrgent, nil, baseTime)

	_, err := f.engine.AssignDoctor(f.ctx, apt.ID, nil, f.nurse)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoAvailableDoctor))

	stored := f.appointment(apt.ID)
	assert.Equal(t, model.AppointmentStatusVitalsRecorded, stored.Status)
	assert.Nil(t, stored.AssignedDoctorID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Assignments.WithLabelValues("auto", "no_doctor")))
}

func TestAutoAssignPicksLeastLoadedThenLowestID(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorC, true)
	f.addDoctor(doctorB, true)
	f.addDoctor(doctorA, true)
	f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)

	first := f.addAppointment(model.AppointmentStatusVitalsRecorded, model.PriorityNormal, nil, baseTime)
	got, err := f.engine.AssignDoctor(f.ctx, first.ID, nil, f.nurse)
	require.NoError(t, err)
	assert.Equal(t, doctorB, *got.AssignedDoctorID, "B and C tie at zero, B has the lower id")

	second := f.addAppointment(model.AppointmentStatusVitalsRecorded, model.PriorityNormal, nil, baseTime)
	got, err = f.engine.AssignDoctor(f.ctx, second.ID, nil, f.nurse)
	require.NoError(t, err)
	assert.Equal(t, doctorC, *got.AssignedDoctorID)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Assignments.WithLabelValues("auto", string(model.AppointmentStatusAssigned))))
}

func TestAssignQueuesBehindCurrentConsultation(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	active := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	_, err := f.engine.StartConsultation(f.ctx, active.ID, doctorA)
	require.NoError(t, err)

	next := f.addAppointment(model.AppointmentStatusVitalsRecorded, model.PriorityNormal, nil, baseTime)
	got, err := f.engine.AssignDoctor(f.ctx, next.ID, nil, f.nurse)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInQueue, got.Status)
	assert.Equal(t, doctorA, *got.AssignedDoctorID)
}

func TestExplicitAssignValidatesDoctor(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, false)
	apt := f.addAppointment(model.AppointmentStatusVitalsRecorded, model.PriorityNormal, nil, baseTime)

	_, err := f.engine.AssignDoctor(f.ctx, apt.ID, ptr(f.nurse), f.nurse)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotADoctor))

	_, err = f.engine.AssignDoctor(f.ctx, apt.ID, ptr(uuid.New()), f.nurse)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotADoctor))

	_, err = f.engine.AssignDoctor(f.ctx, apt.ID, ptr(doctorA), f.nurse)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoAvailableDoctor))

	other := &model.User{Base: model.Base{ID: doctorB}, HospitalID: uuid.New(), Email: "other@clinic.test",
		Role: model.RoleDoctor, IsActive: true, IsAvailable: true}
	require.NoError(t, f.store.Users().Create(f.ctx, other))
	_, err = f.engine.AssignDoctor(f.ctx, apt.ID, ptr(doctorB), f.nurse)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoAvailableDoctor))

	assert.Equal(t, model.AppointmentStatusVitalsRecorded, f.appointment(apt.ID).Status)
}

func TestAssignRequiresVitals(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	apt := f.addAppointment(model.AppointmentStatusCreated, model.PriorityNormal, nil, baseTime)

	_, err := f.engine.AssignDoctor(f.ctx, apt.ID, nil, f.nurse)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))
}

func TestStartWhileHoldingAnotherConsultation(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	first := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	second := f.addAppointment(model.AppointmentStatusInQueue, model.PriorityNormal, ptr(doctorA), baseTime)

	_, err := f.engine.StartConsultation(f.ctx, first.ID, doctorA)
	require.NoError(t, err)

	_, err = f.engine.StartConsultation(f.ctx, second.ID, doctorA)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyInConsultation))
	assert.Equal(t, model.AppointmentStatusInQueue, f.appointment(second.ID).Status)

	_, err = f.engine.StartConsultation(f.ctx, first.ID, doctorA)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyInConsultation))
}

func TestConcurrentStartHasOneWinner(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	apt := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.StartConsultation(f.ctx, apt.ID, doctorA)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		code := apperrors.CodeOf(err)
		assert.Contains(t, []apperrors.ErrorCode{apperrors.ErrAlreadyInConsultation, apperrors.ErrConflict}, code, err.Error())
	}
	assert.Equal(t, 1, successes)

	assert.Equal(t, model.AppointmentStatusInConsultation, f.appointment(apt.ID).Status)
	assert.Equal(t, apt.ID, *f.doctor(doctorA).CurrentAppointmentID)
}

func TestStartReleasesClaimWhenAppointmentChanged(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	apt := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)

	stale := *f.engine
	stale.appointments = &staleAppointments{AppointmentRepository: f.store.Appointments()}

	_, err := stale.StartConsultation(f.ctx, apt.ID, doctorA)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	assert.Nil(t, f.doctor(doctorA).CurrentAppointmentID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueueConflicts.WithLabelValues("start")))
}

// staleAppointments simulates a writer that always loses the version check.
type staleAppointments struct {
	repository.AppointmentRepository
}

func (s *staleAppointments) Update(ctx context.Context, apt *model.Appointment) error {
	stale := apt.Clone()
	stale.Version--
	return s.AppointmentRepository.Update(ctx, stale)
}

func TestCompleteOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    model.AppointmentStatus
	}{
		{"no follow-up", Outcome{}, model.AppointmentStatusCompleted},
		{"prescription", Outcome{HasPendingPrescription: true}, model.AppointmentStatusPendingPharmacy},
		{"referral", Outcome{Referral: true}, model.AppointmentStatusPendingReferral},
		{"prescription wins over referral", Outcome{HasPendingPrescription: true, Referral: true}, model.AppointmentStatusPendingPharmacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addDoctor(doctorA, true)
			apt := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
			_, err := f.engine.StartConsultation(f.ctx, apt.ID, doctorA)
			require.NoError(t, err)

			got, err := f.engine.CompleteConsultation(f.ctx, apt.ID, doctorA, tt.outcome)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == model.AppointmentStatusCompleted, got.CompletedAt != nil)
			assert.Nil(t, f.doctor(doctorA).CurrentAppointmentID)
		})
	}
}

func TestCloseReferral(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	apt := f.addAppointment(model.AppointmentStatusPendingReferral, model.PriorityNormal, ptr(doctorA), baseTime)

	_, err := f.engine.Dispense(f.ctx, apt.ID, doctorA)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))

	got, err := f.engine.CloseReferral(f.ctx, apt.ID, doctorA)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.DispensedAt)
}

func TestDispenseStampsHandover(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	apt := f.addAppointment(model.AppointmentStatusPendingPharmacy, model.PriorityNormal, ptr(doctorA), baseTime)

	got, err := f.engine.Dispense(f.ctx, apt.ID, f.nurse)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, got.Status)
	require.NotNil(t, got.DispensedAt)
	assert.True(t, got.DispensedAt.Equal(*got.CompletedAt))
}

func TestCompleteGuards(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	f.addDoctor(doctorB, true)
	apt := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)

	_, err := f.engine.CompleteConsultation(f.ctx, apt.ID, doctorA, Outcome{})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))

	_, err = f.engine.StartConsultation(f.ctx, apt.ID, doctorA)
	require.NoError(t, err)
	_, err = f.engine.CompleteConsultation(f.ctx, apt.ID, doctorB, Outcome{})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotAssigned))
}

func TestCancelDuringConsultationFreesDoctor(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	apt := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	_, err := f.engine.StartConsultation(f.ctx, apt.ID, doctorA)
	require.NoError(t, err)

	got, err := f.engine.Cancel(f.ctx, apt.ID, f.nurse, "patient left")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, got.Status)
	assert.Nil(t, got.AssignedDoctorID)
	require.NotNil(t, got.CancelledDoctorID)
	assert.Equal(t, doctorA, *got.CancelledDoctorID)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, "patient left", *got.CancelReason)
	assert.Nil(t, f.doctor(doctorA).CurrentAppointmentID)
	assertDoctorInvariant(t, got)

	_, err = f.engine.Cancel(f.ctx, apt.ID, f.nurse, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))

	logs, _, err := f.store.Audit().List(f.ctx, model.AuditFilter{HospitalID: f.hospital, Action: model.AuditActionTransition})
	require.NoError(t, err)
	found := false
	for _, l := range logs {
		if strings.Contains(string(l.Changes), `"previous_doctor_id":"`+doctorA.String()) {
			found = true
		}
	}
	assert.True(t, found, "cancel audit record keeps the previous doctor")
}

func TestCancelLeavesOtherConsultationAlone(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	active := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	queued := f.addAppointment(model.AppointmentStatusInQueue, model.PriorityNormal, ptr(doctorA), baseTime)
	_, err := f.engine.StartConsultation(f.ctx, active.ID, doctorA)
	require.NoError(t, err)

	_, err = f.engine.Cancel(f.ctx, queued.ID, f.nurse, "")
	require.NoError(t, err)
	assert.Equal(t, active.ID, *f.doctor(doctorA).CurrentAppointmentID)
}

func TestSetDoctorAvailability(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	apt := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	_, err := f.engine.StartConsultation(f.ctx, apt.ID, doctorA)
	require.NoError(t, err)

	doctor, err := f.engine.SetDoctorAvailability(f.ctx, doctorA, false)
	require.NoError(t, err)
	assert.False(t, doctor.IsAvailable)
	require.NotNil(t, doctor.CurrentAppointmentID)
	assert.Equal(t, apt.ID, *doctor.CurrentAppointmentID)

	_, err = f.engine.SetDoctorAvailability(f.ctx, f.nurse, true)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotADoctor))
}

func TestLogoutMidConsultation(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	apt := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	_, err := f.engine.StartConsultation(f.ctx, apt.ID, doctorA)
	require.NoError(t, err)

	require.NoError(t, f.engine.OnLogout(f.ctx, doctorA))
	doctor := f.doctor(doctorA)
	assert.False(t, doctor.IsAvailable)
	assert.Nil(t, doctor.CurrentAppointmentID)
	assert.Equal(t, model.AppointmentStatusInConsultation, f.appointment(apt.ID).Status)

	require.NoError(t, f.engine.OnLogin(f.ctx, doctorA))
	assert.True(t, f.doctor(doctorA).IsAvailable)
}

func TestLoginClearsStalePointer(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, false)
	require.NoError(t, f.store.Users().ClaimAppointment(f.ctx, doctorA, uuid.New()))

	require.NoError(t, f.engine.OnLogin(f.ctx, doctorA))
	doctor := f.doctor(doctorA)
	assert.True(t, doctor.IsAvailable)
	assert.Nil(t, doctor.CurrentAppointmentID)
}

func TestLoginLogoutIgnoreNonDoctors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.OnLogin(f.ctx, f.nurse))
	require.NoError(t, f.engine.OnLogout(f.ctx, f.nurse))
	assert.True(t, f.doctor(f.nurse).IsAvailable)

	err := f.engine.OnLogin(f.ctx, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListQueueOrderingAndStats(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	normal := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	emergency := f.addAppointment(model.AppointmentStatusInQueue, model.PriorityEmergency, ptr(doctorA), baseTime.Add(time.Minute))
	urgent := f.addAppointment(model.AppointmentStatusInQueue, model.PriorityUrgent, ptr(doctorA), baseTime.Add(2*time.Minute))
	laterNormal := f.addAppointment(model.AppointmentStatusInQueue, model.PriorityNormal, ptr(doctorA), baseTime.Add(3*time.Minute))
	f.addAppointment(model.AppointmentStatusPendingPharmacy, model.PriorityEmergency, ptr(doctorA), baseTime)

	done := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	_, err := f.engine.StartConsultation(f.ctx, done.ID, doctorA)
	require.NoError(t, err)
	_, err = f.engine.CompleteConsultation(f.ctx, done.ID, doctorA, Outcome{})
	require.NoError(t, err)
	_, err = f.engine.StartConsultation(f.ctx, normal.ID, doctorA)
	require.NoError(t, err)

	queue, err := f.engine.ListQueue(f.ctx, doctorA)
	require.NoError(t, err)

	var order []uuid.UUID
	for _, apt := range queue.Appointments {
		order = append(order, apt.ID)
	}
	assert.Equal(t, []uuid.UUID{emergency.ID, urgent.ID, normal.ID, laterNormal.ID}, order)
	assert.Equal(t, model.QueueStats{
		Total:          4,
		Emergency:      1,
		Urgent:         1,
		Normal:         2,
		Pending:        3,
		InProgress:     1,
		CompletedToday: 1,
	}, queue.Stats)
	assert.Equal(t, "Asha Rao", queue.Appointments[0].PatientName)
}

func TestListAvailableDoctors(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	f.addDoctor(doctorB, true)
	f.addDoctor(doctorC, false)
	f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	busy := f.addAppointment(model.AppointmentStatusAssigned, model.PriorityNormal, ptr(doctorA), baseTime)
	_, err := f.engine.StartConsultation(f.ctx, busy.ID, doctorA)
	require.NoError(t, err)

	roster, err := f.engine.ListAvailableDoctors(f.ctx, f.hospital, false)
	require.NoError(t, err)
	require.Len(t, roster.Doctors, 3)
	assert.Equal(t, doctorB, roster.Doctors[0].ID)
	assert.Equal(t, doctorA, roster.Doctors[1].ID)
	assert.Equal(t, doctorC, roster.Doctors[2].ID)
	assert.Equal(t, 3, roster.Count)
	assert.Equal(t, 2, roster.AvailableCount)
	assert.Equal(t, 1, roster.BusyCount)

	a := roster.Doctors[1]
	assert.Equal(t, 2, a.CurrentPatients)
	assert.Equal(t, 1, a.QueueCount)
	assert.True(t, a.IsBusy)
	assert.Equal(t, model.DefaultSpecialty, a.Specialty)
	assert.Contains(t, a.Name, "Dr. ")

	roster, err = f.engine.ListAvailableDoctors(f.ctx, f.hospital, true)
	require.NoError(t, err)
	assert.Equal(t, 2, roster.Count)
}

func TestGetAvailability(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(doctorA, true)
	f.addAppointment(model.AppointmentStatusInQueue, model.PriorityNormal, ptr(doctorA), baseTime)

	got, err := f.engine.GetAvailability(f.ctx, doctorA)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)
	assert.Equal(t, 1, got.CurrentPatients)
	assert.Nil(t, got.CurrentAppointmentID)

	_, err = f.engine.GetAvailability(f.ctx, f.nurse)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotADoctor))
}

func TestTransitionSideEffects(t *testing.T) {
	f := newFixture(t)
	apt := f.addAppointment(model.AppointmentStatusCreated, model.PriorityNormal, nil, baseTime)

	_, err := f.engine.RecordVitals(f.ctx, apt.ID, f.nurse, &model.Vitals{})
	require.NoError(t, err)

	pending := f.store.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "appointment.vitals_recorded", pending[0].EventType)
	assert.Contains(t, string(pending[0].Payload), `"from":"CREATED"`)

	logs, total, err := f.store.Audit().List(f.ctx, model.AuditFilter{HospitalID: f.hospital})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, f.nurse, logs[0].UserID)
	assert.Equal(t, apt.ID, logs[0].EntityID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueueTransitions.WithLabelValues("CREATED", "VITALS_RECORDED")))
}

func TestStampsNeverGoBackwards(t *testing.T) {
	f := newFixture(t)
	apt := f.addAppointment(model.AppointmentStatusCreated, model.PriorityNormal, nil, baseTime)
	f.clock = baseTime.Add(-time.Hour)

	got, err := f.engine.RecordVitals(f.ctx, apt.ID, f.nurse, &model.Vitals{})
	require.NoError(t, err)
	assert.True(t, got.VitalsRecordedAt.Equal(baseTime))
}
