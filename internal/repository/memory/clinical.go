package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
)

type patientRepository struct{ s *Store }

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stampBase(&patient.Base, time.Now())
	p := *patient
	r.s.patients[p.ID] = &p
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.patients[patient.ID]; !ok {
		return repository.ErrNotFound
	}
	patient.UpdatedAt = time.Now()
	p := *patient
	r.s.patients[p.ID] = &p
	return nil
}

func (r *patientRepository) List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var matched []*model.Patient
	for _, p := range r.s.patients {
		if p.HospitalID != filter.HospitalID {
			continue
		}
		if search != "" && !patientMatches(p, search) {
			continue
		}
		c := *p
		matched = append(matched, &c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	page := filter.Pagination.Normalize()
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func patientMatches(p *model.Patient, search string) bool {
	for _, field := range []string{p.FirstName, p.LastName, p.PatientNumber, p.Phone, p.Email} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

type appointmentRepository struct{ s *Store }

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stampBase(&appointment.Base, time.Now())
	appointment.Version = 1
	r.s.appointments[appointment.ID] = appointment.Clone()
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.s.withPatientName(a.Clone()), nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.appointments[appointment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != appointment.Version {
		return repository.ErrConflict
	}
	appointment.Version++
	appointment.UpdatedAt = time.Now()
	next := appointment.Clone()
	next.PatientName = ""
	r.s.appointments[appointment.ID] = next
	return nil
}

func (r *appointmentRepository) UpdateNote(ctx context.Context, appointment *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.appointments[appointment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != appointment.Version {
		return repository.ErrConflict
	}
	next := stored.Clone()
	if appointment.Note != nil {
		n := *appointment.Note
		next.Note = &n
	} else {
		next.Note = nil
	}
	next.Version++
	next.UpdatedAt = time.Now()
	r.s.appointments[appointment.ID] = next

	appointment.Version = next.Version
	appointment.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []*model.Appointment
	for _, a := range r.s.appointments {
		if !appointmentMatches(a, filter) {
			continue
		}
		result = append(result, r.s.withPatientName(a.Clone()))
	}
	sort.Slice(result, func(i, j int) bool {
		if filter.NewestFirst {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *appointmentRepository) DoctorLoads(ctx context.Context, hospitalID uuid.UUID) (map[uuid.UUID]model.DoctorLoad, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	loads := make(map[uuid.UUID]model.DoctorLoad)
	for _, a := range r.s.appointments {
		if a.HospitalID != hospitalID || a.AssignedDoctorID == nil || !a.Status.IsActive() {
			continue
		}
		load := loads[*a.AssignedDoctorID]
		load.DoctorID = *a.AssignedDoctorID
		load.CurrentPatients++
		if a.Status != model.AppointmentStatusInConsultation {
			load.QueueCount++
		}
		loads[*a.AssignedDoctorID] = load
	}
	return loads, nil
}

func (r *appointmentRepository) CountCompletedSince(ctx context.Context, doctorID uuid.UUID, since time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	count := 0
	for _, a := range r.s.appointments {
		if a.AssignedDoctorID == nil || *a.AssignedDoctorID != doctorID {
			continue
		}
		if a.ConsultationCompletedAt != nil && !a.ConsultationCompletedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func appointmentMatches(a *model.Appointment, f model.AppointmentFilter) bool {
	if f.HospitalID != uuid.Nil && a.HospitalID != f.HospitalID {
		return false
	}
	if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
		return false
	}
	if f.DoctorID != uuid.Nil && (a.AssignedDoctorID == nil || *a.AssignedDoctorID != f.DoctorID) {
		return false
	}
	if f.InvolvingDoctorID != uuid.Nil && !sameDoctor(a.AssignedDoctorID, f.InvolvingDoctorID) && !sameDoctor(a.CancelledDoctorID, f.InvolvingDoctorID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if a.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CompletedSince != nil && (a.ConsultationCompletedAt == nil || a.ConsultationCompletedAt.Before(*f.CompletedSince)) {
		return false
	}
	return true
}

func sameDoctor(id *uuid.UUID, doctorID uuid.UUID) bool {
	return id != nil && *id == doctorID
}

// withPatientName must be called with the lock held.
func (s *Store) withPatientName(a *model.Appointment) *model.Appointment {
	if p, ok := s.patients[a.PatientID]; ok {
		a.PatientName = p.FullName()
	}
	return a
}

type prescriptionRepository struct{ s *Store }

func (r *prescriptionRepository) Create(ctx context.Context, prescription *model.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.prescriptions[prescription.AppointmentID]; exists {
		return repository.ErrDuplicate
	}
	if prescription.ID == uuid.Nil {
		prescription.ID = uuid.New()
	}
	if prescription.CreatedAt.IsZero() {
		prescription.CreatedAt = time.Now()
	}
	p := *prescription
	p.Items = append(model.PrescriptionItems(nil), prescription.Items...)
	r.s.prescriptions[p.AppointmentID] = &p
	return nil
}

func (r *prescriptionRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Prescription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.prescriptions[appointmentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *prescriptionRepository) Exists(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.prescriptions[appointmentID]
	return ok, nil
}

func (r *prescriptionRepository) MarkDispensed(ctx context.Context, appointmentID, dispensedBy uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.prescriptions[appointmentID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.DispensedAt != nil {
		return repository.ErrConflict
	}
	t, by := at, dispensedBy
	p.DispensedAt = &t
	p.DispensedByID = &by
	return nil
}

func (r *prescriptionRepository) ListPending(ctx context.Context, hospitalID uuid.UUID) ([]*model.Prescription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var pending []*model.Prescription
	for _, p := range r.s.prescriptions {
		apt, ok := r.s.appointments[p.AppointmentID]
		if !ok || apt.Status != model.AppointmentStatusPendingPharmacy {
			continue
		}
		if p.HospitalID == hospitalID && p.DispensedAt == nil {
			c := *p
			pending = append(pending, &c)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}
