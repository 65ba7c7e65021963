package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository/memory"
)

func TestEmitQueuesOutboxEvent(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Outbox())

	err := svc.Emit(context.Background(), model.EventPatientRegistered, map[string]string{"patient_number": "PAT-1"})
	require.NoError(t, err)

	pending := store.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, model.EventPatientRegistered, pending[0].EventType)
	assert.Equal(t, model.OutboxStatusPending, pending[0].Status)
	assert.JSONEq(t, `{"patient_number":"PAT-1"}`, string(pending[0].Payload))
}

func TestEmitRejectsUnmarshalablePayload(t *testing.T) {
	svc := NewService(memory.NewStore().Outbox())
	err := svc.Emit(context.Background(), "x", make(chan int))
	assert.Error(t, err)
}
