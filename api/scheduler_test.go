package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/school"
)

func TestOverdueScheduler_RunNow(t *testing.T) {
	// GIVEN: A student enrolled in January with nothing paid
	s := setupTestServer(t)
	class := s.createClass("5A", "2025", "300.00")
	enrolled := s.enroll(class.ID, "2025-01-10")

	sched := NewOverdueScheduler(s.handler.Ledger, zap.NewNop())
	sched.Today = func() school.Date { return school.NewDate(2025, time.June, 1) }

	// WHEN: Running once
	n, err := sched.RunNow(context.Background())

	// THEN: January to May are overdue
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.False(t, sched.LastRun().IsZero())

	overdue, err := s.handler.Ledger.Charges(context.Background(), school.ChargeFilter{
		StudentID: school.StudentID(enrolled.Student.ID),
		Statuses:  []school.ChargeStatus{school.ChargeOverdue},
	})
	require.NoError(t, err)
	assert.Len(t, overdue, 5)
}

func TestOverdueScheduler_StartStop(t *testing.T) {
	s := setupTestServer(t)
	class := s.createClass("5A", "2025", "300.00")
	s.enroll(class.ID, "2025-01-10")

	sched := NewOverdueScheduler(s.handler.Ledger, zap.NewNop())
	sched.CheckInterval = 10 * time.Millisecond
	sched.Today = func() school.Date { return school.NewDate(2026, time.January, 1) }

	sched.Start()
	assert.Eventually(t, func() bool { return !sched.LastRun().IsZero() }, time.Second, 5*time.Millisecond)
	sched.Stop()
	sched.Stop() // second stop is a no-op

	unpaid, err := s.handler.Ledger.Charges(context.Background(), school.ChargeFilter{
		Statuses: []school.ChargeStatus{school.ChargeOverdue},
	})
	require.NoError(t, err)
	assert.Len(t, unpaid, 12)
}

func TestOverdueScheduler_Disabled(t *testing.T) {
	s := setupTestServer(t)
	sched := NewOverdueScheduler(s.handler.Ledger, zap.NewNop())
	sched.Enabled = false

	sched.Start()
	sched.Stop()

	assert.True(t, sched.LastRun().IsZero())
}
