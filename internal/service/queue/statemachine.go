package queue

import "github.com/jwalitptl/patientflow/internal/model"

var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusCreated: {
		model.AppointmentStatusVitalsRecorded,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusVitalsRecorded: {
		model.AppointmentStatusAssigned,
		model.AppointmentStatusInQueue,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusAssigned: {
		model.AppointmentStatusInQueue,
		model.AppointmentStatusInConsultation,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusInQueue: {
		model.AppointmentStatusInConsultation,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusInConsultation: {
		model.AppointmentStatusPendingPharmacy,
		model.AppointmentStatusPendingReferral,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusPendingPharmacy: {
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusPendingReferral: {
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
	},
}

// CanTransition reports whether an appointment may move from one status to another.
func CanTransition(from, to model.AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from status in one step.
func NextStatuses(status model.AppointmentStatus) []model.AppointmentStatus {
	next := transitions[status]
	out := make([]model.AppointmentStatus, len(next))
	copy(out, next)
	return out
}
