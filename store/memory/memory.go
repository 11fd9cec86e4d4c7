// Package memory provides an in-memory school.TxStore (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/tuition-engine/school"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory keeps every record in maps keyed by id. Rows are stored by value,
// so callers never alias store state.
type Memory struct {
	mu    sync.Mutex
	state state
}

type state struct {
	seq       int64
	classes   map[school.ClassID]school.Class
	students  map[school.StudentID]school.Student
	contracts map[school.ContractID]school.Contract
	charges   map[school.ChargeID]school.Charge
	periods   map[periodKey]school.ChargeID
	transfers []school.TransferEntry
}

type periodKey struct {
	StudentID school.StudentID
	Period    school.Month
}

var _ school.TxStore = (*Memory)(nil)

func New() *Memory {
	return &Memory{state: state{
		classes:   make(map[school.ClassID]school.Class),
		students:  make(map[school.StudentID]school.Student),
		contracts: make(map[school.ContractID]school.Contract),
		charges:   make(map[school.ChargeID]school.Charge),
		periods:   make(map[periodKey]school.ChargeID),
	}}
}

// WithTx executes fn within a transaction.
// Simulated with a snapshot + restore on error.
func (m *Memory) WithTx(ctx context.Context, fn func(school.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&view{st: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// Reset clears all data (for demo scenarios).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = New().state
	return nil
}

func (s state) clone() state {
	c := state{
		seq:       s.seq,
		classes:   make(map[school.ClassID]school.Class, len(s.classes)),
		students:  make(map[school.StudentID]school.Student, len(s.students)),
		contracts: make(map[school.ContractID]school.Contract, len(s.contracts)),
		charges:   make(map[school.ChargeID]school.Charge, len(s.charges)),
		periods:   make(map[periodKey]school.ChargeID, len(s.periods)),
		transfers: append([]school.TransferEntry(nil), s.transfers...),
	}
	for k, v := range s.classes {
		c.classes[k] = v
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.contracts {
		c.contracts[k] = v
	}
	for k, v := range s.charges {
		c.charges[k] = v
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	return c
}

// The Store methods on Memory lock and delegate to a view over the live state.

func (m *Memory) locked(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{st: &m.state})
}

func (m *Memory) CreateClass(ctx context.Context, c *school.Class) error {
	return m.locked(func(v *view) error { return v.CreateClass(ctx, c) })
}

func (m *Memory) GetClass(ctx context.Context, id school.ClassID) (out school.Class, err error) {
	err = m.locked(func(v *view) error { out, err = v.GetClass(ctx, id); return err })
	return out, err
}

func (m *Memory) UpdateClass(ctx context.Context, c school.Class) error {
	return m.locked(func(v *view) error { return v.UpdateClass(ctx, c) })
}

func (m *Memory) DeleteClass(ctx context.Context, id school.ClassID) error {
	return m.locked(func(v *view) error { return v.DeleteClass(ctx, id) })
}

func (m *Memory) ListClasses(ctx context.Context) (out []school.Class, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListClasses(ctx); return err })
	return out, err
}

func (m *Memory) CreateStudent(ctx context.Context, s *school.Student) error {
	return m.locked(func(v *view) error { return v.CreateStudent(ctx, s) })
}

func (m *Memory) GetStudent(ctx context.Context, id school.StudentID) (out school.Student, err error) {
	err = m.locked(func(v *view) error { out, err = v.GetStudent(ctx, id); return err })
	return out, err
}

func (m *Memory) UpdateStudent(ctx context.Context, s school.Student) error {
	return m.locked(func(v *view) error { return v.UpdateStudent(ctx, s) })
}

func (m *Memory) ListStudents(ctx context.Context, f school.StudentFilter) (out []school.Student, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListStudents(ctx, f); return err })
	return out, err
}

func (m *Memory) CreateContract(ctx context.Context, c *school.Contract) error {
	return m.locked(func(v *view) error { return v.CreateContract(ctx, c) })
}

func (m *Memory) GetContract(ctx context.Context, id school.ContractID) (out school.Contract, err error) {
	err = m.locked(func(v *view) error { out, err = v.GetContract(ctx, id); return err })
	return out, err
}

func (m *Memory) UpdateContract(ctx context.Context, c school.Contract) error {
	return m.locked(func(v *view) error { return v.UpdateContract(ctx, c) })
}

func (m *Memory) ListContracts(ctx context.Context, f school.ContractFilter) (out []school.Contract, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListContracts(ctx, f); return err })
	return out, err
}

func (m *Memory) CreateCharge(ctx context.Context, c *school.Charge) error {
	return m.locked(func(v *view) error { return v.CreateCharge(ctx, c) })
}

func (m *Memory) GetCharge(ctx context.Context, id school.ChargeID) (out school.Charge, err error) {
	err = m.locked(func(v *view) error { out, err = v.GetCharge(ctx, id); return err })
	return out, err
}

func (m *Memory) UpdateCharge(ctx context.Context, c school.Charge) error {
	return m.locked(func(v *view) error { return v.UpdateCharge(ctx, c) })
}

func (m *Memory) ListCharges(ctx context.Context, f school.ChargeFilter) (out []school.Charge, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListCharges(ctx, f); return err })
	return out, err
}

func (m *Memory) AppendTransfer(ctx context.Context, e *school.TransferEntry) error {
	return m.locked(func(v *view) error { return v.AppendTransfer(ctx, e) })
}

func (m *Memory) ListTransfers(ctx context.Context, f school.TransferFilter) (out []school.TransferEntry, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListTransfers(ctx, f); return err })
	return out, err
}

// =============================================================================
// VIEW - lock-free Store over a state, used directly inside WithTx
// =============================================================================

type view struct {
	st *state
}

func (v *view) nextID() int64 {
	v.st.seq++
	return v.st.seq
}

func (v *view) CreateClass(_ context.Context, c *school.Class) error {
	c.ID = school.ClassID(v.nextID())
	v.st.classes[c.ID] = *c
	return nil
}

func (v *view) GetClass(_ context.Context, id school.ClassID) (school.Class, error) {
	c, ok := v.st.classes[id]
	if !ok {
		return school.Class{}, school.NotFound("class", int64(id))
	}
	return c, nil
}

func (v *view) UpdateClass(_ context.Context, c school.Class) error {
	if _, ok := v.st.classes[c.ID]; !ok {
		return school.NotFound("class", int64(c.ID))
	}
	v.st.classes[c.ID] = c
	return nil
}

func (v *view) DeleteClass(_ context.Context, id school.ClassID) error {
	if _, ok := v.st.classes[id]; !ok {
		return school.NotFound("class", int64(id))
	}
	delete(v.st.classes, id)
	return nil
}

func (v *view) ListClasses(_ context.Context) ([]school.Class, error) {
	out := make([]school.Class, 0, len(v.st.classes))
	for _, c := range v.st.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) CreateStudent(_ context.Context, s *school.Student) error {
	s.ID = school.StudentID(v.nextID())
	v.st.students[s.ID] = *s
	return nil
}

func (v *view) GetStudent(_ context.Context, id school.StudentID) (school.Student, error) {
	s, ok := v.st.students[id]
	if !ok {
		return school.Student{}, school.NotFound("student", int64(id))
	}
	return s, nil
}

func (v *view) UpdateStudent(_ context.Context, s school.Student) error {
	if _, ok := v.st.students[s.ID]; !ok {
		return school.NotFound("student", int64(s.ID))
	}
	v.st.students[s.ID] = s
	return nil
}

func (v *view) ListStudents(_ context.Context, f school.StudentFilter) ([]school.Student, error) {
	var out []school.Student
	for _, s := range v.st.students {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) CreateContract(_ context.Context, c *school.Contract) error {
	c.ID = school.ContractID(v.nextID())
	v.st.contracts[c.ID] = *c
	return nil
}

func (v *view) GetContract(_ context.Context, id school.ContractID) (school.Contract, error) {
	c, ok := v.st.contracts[id]
	if !ok {
		return school.Contract{}, school.NotFound("contract", int64(id))
	}
	return c, nil
}

func (v *view) UpdateContract(_ context.Context, c school.Contract) error {
	if _, ok := v.st.contracts[c.ID]; !ok {
		return school.NotFound("contract", int64(c.ID))
	}
	v.st.contracts[c.ID] = c
	return nil
}

func (v *view) ListContracts(_ context.Context, f school.ContractFilter) ([]school.Contract, error) {
	var out []school.Contract
	for _, c := range v.st.contracts {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) CreateCharge(_ context.Context, c *school.Charge) error {
	k := periodKey{StudentID: c.StudentID, Period: c.Period}
	if _, dup := v.st.periods[k]; dup {
		return school.ErrDuplicatePeriod
	}
	c.ID = school.ChargeID(v.nextID())
	v.st.charges[c.ID] = *c
	v.st.periods[k] = c.ID
	return nil
}

func (v *view) GetCharge(_ context.Context, id school.ChargeID) (school.Charge, error) {
	c, ok := v.st.charges[id]
	if !ok {
		return school.Charge{}, school.NotFound("charge", int64(id))
	}
	return c, nil
}

func (v *view) UpdateCharge(_ context.Context, c school.Charge) error {
	old, ok := v.st.charges[c.ID]
	if !ok {
		return school.NotFound("charge", int64(c.ID))
	}
	oldKey := periodKey{StudentID: old.StudentID, Period: old.Period}
	newKey := periodKey{StudentID: c.StudentID, Period: c.Period}
	if oldKey != newKey {
		if _, dup := v.st.periods[newKey]; dup {
			return school.ErrDuplicatePeriod
		}
		delete(v.st.periods, oldKey)
		v.st.periods[newKey] = c.ID
	}
	v.st.charges[c.ID] = c
	return nil
}

func (v *view) ListCharges(_ context.Context, f school.ChargeFilter) ([]school.Charge, error) {
	var out []school.Charge
	for _, c := range v.st.charges {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].Period.Before(out[j].Period)
	})
	return out, nil
}

func (v *view) AppendTransfer(_ context.Context, e *school.TransferEntry) error {
	e.ID = school.TransferID(v.nextID())
	v.st.transfers = append(v.st.transfers, *e)
	return nil
}

func (v *view) ListTransfers(_ context.Context, f school.TransferFilter) ([]school.TransferEntry, error) {
	var out []school.TransferEntry
	for _, e := range v.st.transfers {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
