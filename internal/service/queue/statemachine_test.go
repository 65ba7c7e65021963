package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/patientflow/internal/model"
)

var allStatuses = []model.AppointmentStatus{
	model.AppointmentStatusCreated,
	model.AppointmentStatusVitalsRecorded,
	model.AppointmentStatusAssigned,
	model.AppointmentStatusInQueue,
	model.AppointmentStatusInConsultation,
	model.AppointmentStatusPendingPharmacy,
	model.AppointmentStatusPendingReferral,
	model.AppointmentStatusCompleted,
	model.AppointmentStatusCancelled,
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.AppointmentStatus
		want     bool
	}{
		{model.AppointmentStatusCreated, model.AppointmentStatusVitalsRecorded, true},
		{model.AppointmentStatusCreated, model.AppointmentStatusAssigned, false},
		{model.AppointmentStatusVitalsRecorded, model.AppointmentStatusInQueue, true},
		{model.AppointmentStatusAssigned, model.AppointmentStatusInConsultation, true},
		{model.AppointmentStatusInQueue, model.AppointmentStatusAssigned, false},
		{model.AppointmentStatusInConsultation, model.AppointmentStatusPendingReferral, true},
		{model.AppointmentStatusInConsultation, model.AppointmentStatusInQueue, false},
		{model.AppointmentStatusPendingPharmacy, model.AppointmentStatusCompleted, true},
		{model.AppointmentStatusCompleted, model.AppointmentStatusCancelled, false},
		{model.AppointmentStatusCancelled, model.AppointmentStatusCreated, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestEveryNonTerminalStatusCanCancel(t *testing.T) {
	for _, s := range allStatuses {
		assert.Equal(t, !s.IsTerminal(), CanTransition(s, model.AppointmentStatusCancelled), s)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	assert.Empty(t, NextStatuses(model.AppointmentStatusCompleted))
	assert.Empty(t, NextStatuses(model.AppointmentStatusCancelled))
}

func TestNextStatusesReturnsCopy(t *testing.T) {
	next := NextStatuses(model.AppointmentStatusCreated)
	next[0] = model.AppointmentStatusCompleted
	assert.True(t, CanTransition(model.AppointmentStatusCreated, model.AppointmentStatusVitalsRecorded))
}
