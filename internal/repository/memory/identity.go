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

type hospitalRepository struct{ s *Store }

func (r *hospitalRepository) CreateWithAdmin(ctx context.Context, hospital *model.Hospital, admin *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, h := range r.s.hospitals {
		if strings.EqualFold(h.Email, hospital.Email) {
			return repository.ErrDuplicate
		}
		if hospital.RegistrationNo != nil && h.RegistrationNo != nil && *h.RegistrationNo == *hospital.RegistrationNo {
			return repository.ErrDuplicate
		}
	}
	if r.s.emailTaken(admin.Email) {
		return repository.ErrDuplicate
	}

	now := time.Now()
	stampBase(&hospital.Base, now)
	admin.HospitalID = hospital.ID
	stampBase(&admin.Base, now)

	h := *hospital
	r.s.hospitals[h.ID] = &h
	r.s.users[admin.ID] = admin.Clone()
	return nil
}

func (r *hospitalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	h, ok := r.s.hospitals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *h
	return &c, nil
}

func (r *hospitalRepository) ExistsByEmailOrRegistration(ctx context.Context, email string, registrationNo *string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, h := range r.s.hospitals {
		if strings.EqualFold(h.Email, email) {
			return true, nil
		}
		if registrationNo != nil && h.RegistrationNo != nil && *h.RegistrationNo == *registrationNo {
			return true, nil
		}
	}
	return false, nil
}

type userRepository struct{ s *Store }

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.emailTaken(user.Email) {
		return repository.ErrDuplicate
	}
	stampBase(&user.Base, time.Now())
	r.s.users[user.ID] = user.Clone()
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return u.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepository) ListDoctors(ctx context.Context, hospitalID uuid.UUID, availableOnly bool) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var doctors []*model.User
	for _, u := range r.s.users {
		if u.HospitalID != hospitalID || !u.IsDoctor() || !u.IsActive {
			continue
		}
		if availableOnly && !u.IsAvailable {
			continue
		}
		doctors = append(doctors, u.Clone())
	}
	sort.Slice(doctors, func(i, j int) bool { return doctors[i].ID.String() < doctors[j].ID.String() })
	return doctors, nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	t := at
	u.LastLoginAt = &t
	u.UpdatedAt = at
	return nil
}

func (r *userRepository) SetAvailability(ctx context.Context, id uuid.UUID, isAvailable, clearCurrent bool) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.IsAvailable = isAvailable
	if clearCurrent {
		u.CurrentAppointmentID = nil
	}
	u.Version++
	u.UpdatedAt = time.Now()
	return u.Clone(), nil
}

func (r *userRepository) ClaimAppointment(ctx context.Context, doctorID, appointmentID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[doctorID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.CurrentAppointmentID != nil {
		return repository.ErrConflict
	}
	id := appointmentID
	u.CurrentAppointmentID = &id
	u.Version++
	u.UpdatedAt = time.Now()
	return nil
}

func (r *userRepository) ReleaseAppointment(ctx context.Context, doctorID, appointmentID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[doctorID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.CurrentAppointmentID == nil || *u.CurrentAppointmentID != appointmentID {
		return repository.ErrConflict
	}
	u.CurrentAppointmentID = nil
	u.Version++
	u.UpdatedAt = time.Now()
	return nil
}

// emailTaken must be called with the lock held.
func (s *Store) emailTaken(email string) bool {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func stampBase(b *model.Base, now time.Time) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}
