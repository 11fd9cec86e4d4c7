/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Status code mapping of domain errors
- Enrollment, payment and transfer flows through the router
- Billing policy settings persistence
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/factory"
	"github.com/warp/tuition-engine/school"
	"github.com/warp/tuition-engine/store/sqlite"
	"github.com/warp/tuition-engine/transfer"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
}

func setupTestServer(t *testing.T) *testServer {
	return setupTestServerWithLogger(t, zap.NewNop())
}

func setupTestServerWithLogger(t *testing.T, log *zap.Logger) *testServer {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, Options{
		PreEnrollment: billing.PreEnrollmentBillExempt,
		Policy:        billing.DefaultPolicy(),
	}, log)
	require.NoError(t, h.LoadPolicy(context.Background()))

	return &testServer{t: t, handler: h, router: NewRouter(h, []string{"http://localhost:5173"})}
}

// do sends body (marshalled unless nil) and returns the recorder.
func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// decodeAs asserts the status and decodes the body into out.
func (s *testServer) decodeAs(rec *httptest.ResponseRecorder, status int, out any) {
	s.t.Helper()
	require.Equal(s.t, status, rec.Code, rec.Body.String())
	if out != nil {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func (s *testServer) createClass(name, year, amount string) ClassDTO {
	s.t.Helper()
	def := school.MustMoney(amount)
	var out ClassDTO
	s.decodeAs(s.do("POST", "/api/classes", ClassRequest{
		Name: name, SchoolYear: year, DefaultMonthlyAmount: &def, DueDay: 10,
	}), http.StatusCreated, &out)
	return out
}

func (s *testServer) enroll(classID int64, enrolled string) EnrollResponse {
	s.t.Helper()
	var out EnrollResponse
	s.decodeAs(s.do("POST", "/api/students", EnrollRequest{
		Name: "Ana Souza", ClassID: classID, EnrollmentDate: enrolled, GenerateCharges: true,
	}), http.StatusCreated, &out)
	return out
}

func (s *testServer) charges(studentID int64) []ChargeDTO {
	s.t.Helper()
	var out []ChargeDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/students/%d/charges", studentID), nil), http.StatusOK, &out)
	return out
}

func chargeFor(t *testing.T, charges []ChargeDTO, period string) ChargeDTO {
	t.Helper()
	for _, c := range charges {
		if c.Period == period {
			return c
		}
	}
	t.Fatalf("no charge for %s", period)
	return ChargeDTO{}
}

// =============================================================================
// CLASSES / STUDENTS
// =============================================================================

func TestCreateClass_ValidationFieldsUseJSONNames(t *testing.T) {
	s := setupTestServer(t)

	var resp ErrorResponse
	s.decodeAs(s.do("POST", "/api/classes", map[string]any{"name": "5A", "due_day": 40}), http.StatusBadRequest, &resp)

	assert.Equal(t, "required", resp.Fields["school_year"])
	assert.Equal(t, "max", resp.Fields["due_day"])
}

func TestCreateClass_MalformedBody(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest("POST", "/api/classes", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrollStudent_GeneratesSchoolYear(t *testing.T) {
	// GIVEN: A 2025 class at 300.00
	s := setupTestServer(t)
	class := s.createClass("5th Grade A", "2025", "300.00")

	// WHEN: Enrolling in June with charge generation
	enrolled := s.enroll(class.ID, "2025-06-15")

	// THEN: Twelve charges, January to May fee-exempt
	assert.Equal(t, 12, enrolled.ChargesCreated)
	assert.Equal(t, "active", enrolled.Student.Status)

	charges := s.charges(enrolled.Student.ID)
	require.Len(t, charges, 12)
	assert.False(t, chargeFor(t, charges, "2025-05").FeeEligible)
	assert.True(t, chargeFor(t, charges, "2025-06").FeeEligible)
	for _, c := range charges {
		assert.True(t, c.Final.Equal(decimal.NewFromInt(300)), c.Period)
		assert.Equal(t, "pending", c.Status)
	}

	// AND: Generating again is a conflict
	rec := s.do("POST", fmt.Sprintf("/api/students/%d/charges/generate", enrolled.Student.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetStudent_NotFound(t *testing.T) {
	s := setupTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/students/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/students/abc", nil).Code)
}

func TestListStudents_StatusFilter(t *testing.T) {
	s := setupTestServer(t)
	class := s.createClass("5A", "2025", "300.00")
	s.enroll(class.ID, "2025-01-10")

	var active []StudentDTO
	s.decodeAs(s.do("GET", "/api/students?status=active", nil), http.StatusOK, &active)
	assert.Len(t, active, 1)

	var inactive []StudentDTO
	s.decodeAs(s.do("GET", "/api/students?status=inactive", nil), http.StatusOK, &inactive)
	assert.Empty(t, inactive)

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/students?status=graduated", nil).Code)
}

func TestDeleteClass_InUse(t *testing.T) {
	s := setupTestServer(t)
	class := s.createClass("5A", "2025", "300.00")
	s.enroll(class.ID, "2025-01-10")

	assert.Equal(t, http.StatusConflict, s.do("DELETE", fmt.Sprintf("/api/classes/%d", class.ID), nil).Code)

	empty := s.createClass("5B", "2025", "300.00")
	assert.Equal(t, http.StatusNoContent, s.do("DELETE", fmt.Sprintf("/api/classes/%d", empty.ID), nil).Code)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPayCharge_AppliesStoredPolicy(t *testing.T) {
	// GIVEN: The discount / late fee policy saved through settings
	s := setupTestServer(t)
	var saved factory.PolicyJSON
	s.decodeAs(s.do("PUT", "/api/settings/billing-policy", map[string]any{
		"discount_amount": "10", "discount_deadline_days": 5, "late_fee_per_day": "2", "grace_days": 30,
	}), http.StatusOK, &saved)
	assert.Equal(t, 30, saved.GraceDays)

	class := s.createClass("5A", "2025", "300.00")
	enrolled := s.enroll(class.ID, "2025-06-01")
	charges := s.charges(enrolled.Student.ID)

	// WHEN: June is paid 2 days early and August 71 days late
	var june, august PayResponse
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/charges/%d/pay", chargeFor(t, charges, "2025-06").ID),
		PayRequest{PaymentDate: "2025-06-08"}), http.StatusOK, &june)
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/charges/%d/pay", chargeFor(t, charges, "2025-08").ID),
		PayRequest{PaymentDate: "2025-08-20"}), http.StatusOK, &august)

	// THEN: 290.00 and 300.00 (within grace); the stored policy is used
	assert.True(t, june.Charge.Final.Equal(decimal.NewFromInt(290)), june.Charge.Final.String())
	assert.Equal(t, "paid", june.Charge.Status)
	assert.True(t, august.Charge.Final.Equal(decimal.NewFromInt(300)), august.Charge.Final.String())
	assert.Equal(t, 10, august.Evaluation.DaysLate)

	// AND: Paying twice is a conflict
	rec := s.do("POST", fmt.Sprintf("/api/charges/%d/pay", june.Charge.ID), PayRequest{PaymentDate: "2025-06-09"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBillingPolicy_PersistsAcrossHandlers(t *testing.T) {
	s := setupTestServer(t)
	s.decodeAs(s.do("PUT", "/api/settings/billing-policy", map[string]any{
		"discount_amount": "15.50", "discount_deadline_days": 3,
	}), http.StatusOK, nil)

	// A fresh handler on the same store picks the stored policy up.
	h := NewHandler(s.handler.Store, Options{Policy: billing.DefaultPolicy()}, zap.NewNop())
	require.NoError(t, h.LoadPolicy(context.Background()))

	assert.True(t, h.Ledger.Policy().DiscountAmount.Equal(school.MustMoney("15.50")))
	assert.Equal(t, 3, h.Ledger.Policy().DiscountDeadlineDays)
}

func TestBillingPolicy_UpdateLoggedOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := setupTestServerWithLogger(t, zap.New(core))
	before := logs.FilterMessage("billing policy updated").Len()

	s.decodeAs(s.do("PUT", "/api/settings/billing-policy", map[string]any{"grace_days": 15}), http.StatusOK, nil)

	assert.Equal(t, 1, logs.FilterMessage("billing policy updated").Len()-before)
}

func TestBillingPolicy_RejectsNegative(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do("PUT", "/api/settings/billing-policy", map[string]any{"late_fee_per_day": "-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var current factory.PolicyJSON
	s.decodeAs(s.do("GET", "/api/settings/billing-policy", nil), http.StatusOK, &current)
	assert.True(t, current.LateFeePerDay.IsZero())
}

func TestPreviewAndCancelPayment(t *testing.T) {
	s := setupTestServer(t)
	class := s.createClass("5A", "2025", "300.00")
	enrolled := s.enroll(class.ID, "2025-01-10")
	march := chargeFor(t, s.charges(enrolled.Student.ID), "2025-03")

	var preview EvaluationDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/charges/%d/preview?date=2025-03-20", march.ID), nil), http.StatusOK, &preview)
	assert.Equal(t, 10, preview.DaysLate)

	var paid ChargeDTO
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/charges/%d/payment", march.ID), RecordPaymentRequest{
		PaymentDate: "2025-03-05", Discount: decimal.NewFromInt(20), Notes: "sibling discount",
	}), http.StatusOK, &paid)
	assert.True(t, paid.Final.Equal(decimal.NewFromInt(280)))

	var reverted ChargeDTO
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/charges/%d/cancel-payment", march.ID), nil), http.StatusOK, &reverted)
	assert.Equal(t, "pending", reverted.Status)
	assert.True(t, reverted.Final.Equal(decimal.NewFromInt(300)))
	assert.Nil(t, reverted.PaidOn)

	assert.Equal(t, http.StatusConflict, s.do("POST", fmt.Sprintf("/api/charges/%d/cancel-payment", march.ID), nil).Code)
}

func TestGetStatement(t *testing.T) {
	// GIVEN: A full-year student who paid March with a 20.00 discount
	s := setupTestServer(t)
	class := s.createClass("5A", "2025", "300.00")
	enrolled := s.enroll(class.ID, "2025-01-10")
	march := chargeFor(t, s.charges(enrolled.Student.ID), "2025-03")
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/charges/%d/payment", march.ID), RecordPaymentRequest{
		PaymentDate: "2025-03-05", Discount: decimal.NewFromInt(20),
	}), http.StatusOK, nil)

	// WHEN: Asking for the statement as of April 1st
	var st StatementDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/students/%d/statement?as_of=2025-04-01", enrolled.Student.ID), nil), http.StatusOK, &st)

	// THEN: January and February are past due, April is next
	assert.Equal(t, 2025, st.Year)
	assert.True(t, st.Billed.Equal(decimal.NewFromInt(3600)), st.Billed.String())
	assert.True(t, st.Paid.Equal(decimal.NewFromInt(280)), st.Paid.String())
	assert.True(t, st.Discounts.Equal(decimal.NewFromInt(20)))
	assert.True(t, st.Outstanding.Equal(decimal.NewFromInt(3300)), st.Outstanding.String())
	assert.True(t, st.PastDue.Equal(decimal.NewFromInt(600)), st.PastDue.String())
	assert.Equal(t, 11, st.OutstandingCount)
	assert.Equal(t, 2, st.PastDueCount)
	require.NotNil(t, st.NextDue)
	assert.Equal(t, "2025-04", st.NextDue.Period)

	// AND: Bad queries and unknown students are rejected
	assert.Equal(t, http.StatusBadRequest, s.do("GET", fmt.Sprintf("/api/students/%d/statement?year=abc", enrolled.Student.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/students/999/statement", nil).Code)
}

func TestRecordPayment_LateFeeOnExemptCharge(t *testing.T) {
	s := setupTestServer(t)
	class := s.createClass("5A", "2025", "300.00")
	enrolled := s.enroll(class.ID, "2025-06-15")
	feb := chargeFor(t, s.charges(enrolled.Student.ID), "2025-02")

	rec := s.do("POST", fmt.Sprintf("/api/charges/%d/payment", feb.ID), RecordPaymentRequest{
		PaymentDate: "2025-07-01", LateFee: decimal.NewFromInt(5),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecalculateStatuses(t *testing.T) {
	s := setupTestServer(t)
	class := s.createClass("5A", "2025", "300.00")
	enrolled := s.enroll(class.ID, "2025-01-10")

	var resp RecalculateResponse
	s.decodeAs(s.do("POST", "/api/admin/recalculate-statuses", RecalculateRequest{AsOf: "2025-04-01"}), http.StatusOK, &resp)
	assert.Equal(t, 3, resp.Updated)

	var overdue []ChargeDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/charges?student_id=%d&status=overdue", enrolled.Student.ID), nil), http.StatusOK, &overdue)
	assert.Len(t, overdue, 3)

	// Idempotent
	s.decodeAs(s.do("POST", "/api/admin/recalculate-statuses", RecalculateRequest{AsOf: "2025-04-01"}), http.StatusOK, &resp)
	assert.Equal(t, 0, resp.Updated)
}

func TestListCharges_InvalidQuery(t *testing.T) {
	s := setupTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/charges?status=late", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/charges?year=twenty", nil).Code)
	assert.Equal(t, http.StatusOK, s.do("GET", "/api/charges?unpaid=true", nil).Code)
}

// =============================================================================
// TRANSFERS
// =============================================================================

func TestTransfer_AutoDetectsSameYear(t *testing.T) {
	s := setupTestServer(t)
	from := s.createClass("4A", "2025", "300.00")
	to := s.createClass("4B", "2025", "350.00")
	enrolled := s.enroll(from.ID, "2025-01-10")

	var resp TransferResponse
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/students/%d/transfer", enrolled.Student.ID), TransferRequest{
		ToClassID: to.ID, ChangeAmount: true, Amount: decimal.NewFromInt(350), Reason: "schedule",
	}), http.StatusOK, &resp)

	assert.Equal(t, "same_year", resp.Type)
	require.NotNil(t, resp.ChargesUpdated)
	assert.Equal(t, 12, *resp.ChargesUpdated)
	assert.Len(t, resp.Entry.OperationID, 36)

	var history []TransferEntryDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/students/%d/transfers", enrolled.Student.ID), nil), http.StatusOK, &history)
	require.Len(t, history, 1)
	assert.True(t, history[0].AmountChanged)
}

func TestTransferSameYear_WrongTypeIs422(t *testing.T) {
	s := setupTestServer(t)
	from := s.createClass("5A", "2025", "300.00")
	to := s.createClass("6A", "2026", "400.00")
	enrolled := s.enroll(from.ID, "2025-01-10")

	rec := s.do("POST", fmt.Sprintf("/api/students/%d/transfer/same-year", enrolled.Student.ID), SameYearRequest{
		FromClassID: from.ID, ToClassID: to.ID,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Nothing was written
	var history []TransferEntryDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/students/%d/transfers", enrolled.Student.ID), nil), http.StatusOK, &history)
	assert.Empty(t, history)
}

func TestTransferNewYear(t *testing.T) {
	s := setupTestServer(t)
	from := s.createClass("5A", "2025", "300.00")
	to := s.createClass("6A", "2026", "400.00")
	enrolled := s.enroll(from.ID, "2025-01-10")

	var resp TransferResponse
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/students/%d/transfer/new-year", enrolled.Student.ID), NewYearRequest{
		FromClassID: from.ID, ToClassID: to.ID, NewContractAmount: decimal.NewFromInt(400),
	}), http.StatusOK, &resp)

	require.NotNil(t, resp.ChargesGenerated)
	assert.Equal(t, 10, *resp.ChargesGenerated)
	assert.Equal(t, 12, *resp.PendingsPreserved)

	var contracts []ContractDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/students/%d/contracts", enrolled.Student.ID), nil), http.StatusOK, &contracts)
	require.Len(t, contracts, 2)
	assert.Equal(t, "closed", contracts[0].Status)
	assert.Equal(t, "active", contracts[1].Status)
	assert.Equal(t, "2026", contracts[1].SchoolYear)
}

func TestDeactivateReactivate(t *testing.T) {
	// GIVEN: A student with everything but November and December paid
	s := setupTestServer(t)
	class := s.createClass("2C", "2025", "300.00")
	enrolled := s.enroll(class.ID, "2025-01-10")
	id := enrolled.Student.ID
	for _, c := range s.charges(id) {
		if c.Period < "2025-11" {
			s.decodeAs(s.do("POST", fmt.Sprintf("/api/charges/%d/pay", c.ID), PayRequest{PaymentDate: "2025-01-05"}), http.StatusOK, nil)
		}
	}

	// WHEN: Deactivating
	var deactivated TransferResponse
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/students/%d/deactivate", id), DeactivateRequest{Reason: "moved"}),
		http.StatusOK, &deactivated)

	// THEN: The debt is reported and the inactive report lists the student
	assert.Equal(t, 2, *deactivated.OutstandingCount)
	assert.True(t, deactivated.OutstandingTotal.Equal(decimal.NewFromInt(600)))

	var inactive []InactiveStudentDTO
	s.decodeAs(s.do("GET", "/api/students/inactive", nil), http.StatusOK, &inactive)
	require.Len(t, inactive, 1)
	assert.Equal(t, 2, inactive[0].PendingCount)
	assert.True(t, inactive[0].PendingValue.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, "moved", inactive[0].Student.DeactivationReason)

	// AND: A second deactivation is a conflict
	assert.Equal(t, http.StatusConflict, s.do("POST", fmt.Sprintf("/api/students/%d/deactivate", id), nil).Code)

	// WHEN: Reactivating
	var reactivated TransferResponse
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/students/%d/reactivate", id), ReactivateRequest{
		ToClassID: class.ID, NewMonthlyAmount: decimal.NewFromInt(300),
	}), http.StatusOK, &reactivated)

	// THEN: Active again, history has both rows, no reactivation source class
	assert.NotNil(t, reactivated.ContractID)
	assert.Nil(t, reactivated.Entry.FromClassID)

	var history []TransferEntryDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/students/%d/transfers", id), nil), http.StatusOK, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "deactivation", history[0].Type)
	assert.Equal(t, "reactivation", history[1].Type)
}

func TestReactivateIntoNewYear_BillsContract(t *testing.T) {
	// GIVEN: A 2025 student deactivated and reactivated into a 2026 class
	s := setupTestServer(t)
	old := s.createClass("5A", "2025", "300.00")
	next := s.createClass("6A", "2026", "400.00")
	enrolled := s.enroll(old.ID, "2025-01-10")
	id := enrolled.Student.ID
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/students/%d/deactivate", id), DeactivateRequest{Reason: "travel"}), http.StatusOK, nil)

	var reactivated TransferResponse
	s.decodeAs(s.do("POST", fmt.Sprintf("/api/students/%d/reactivate", id), ReactivateRequest{ToClassID: next.ID}), http.StatusOK, &reactivated)
	require.NotNil(t, reactivated.ContractID)
	assert.True(t, reactivated.Entry.NewAmount.Equal(decimal.NewFromInt(400)), "class default applies")

	// AND: Generating for the student is refused, the 2025 charges exist
	assert.Equal(t, http.StatusConflict, s.do("POST", fmt.Sprintf("/api/students/%d/charges/generate", id), nil).Code)

	// WHEN: Billing the new contract
	path := fmt.Sprintf("/api/students/%d/contracts/%d/charges/generate", id, *reactivated.ContractID)
	var generated GenerateResponse
	s.decodeAs(s.do("POST", path, nil), http.StatusCreated, &generated)

	// THEN: March..December 2026 at 400.00; a repeat creates nothing
	assert.Equal(t, 10, generated.ChargesCreated)
	var billed []ChargeDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/charges?student_id=%d&year=2026", id), nil), http.StatusOK, &billed)
	require.Len(t, billed, 10)
	assert.Equal(t, "2026-03", billed[0].Period)
	assert.True(t, billed[0].Original.Equal(decimal.NewFromInt(400)))

	s.decodeAs(s.do("POST", path, nil), http.StatusCreated, &generated)
	assert.Zero(t, generated.ChargesCreated)

	// AND: The closed 2025 contract cannot be billed
	var contracts []ContractDTO
	s.decodeAs(s.do("GET", fmt.Sprintf("/api/students/%d/contracts", id), nil), http.StatusOK, &contracts)
	require.Len(t, contracts, 2)
	closed := fmt.Sprintf("/api/students/%d/contracts/%d/charges/generate", id, contracts[0].ID)
	assert.Equal(t, http.StatusConflict, s.do("POST", closed, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("POST", fmt.Sprintf("/api/students/%d/contracts/999/charges/generate", id), nil).Code)
}

func TestValidateTransfer(t *testing.T) {
	s := setupTestServer(t)
	from := s.createClass("5A", "2025", "300.00")
	to := s.createClass("6A", "2026", "400.00")
	enrolled := s.enroll(from.ID, "2025-01-10")
	path := fmt.Sprintf("/api/students/%d/transfer/validate", enrolled.Student.ID)

	var report transfer.ValidationReport
	s.decodeAs(s.do("POST", path, ValidateTransferRequest{ToClassID: &to.ID, Type: "same_year"}), http.StatusOK, &report)
	assert.False(t, report.Valid)
	assert.Equal(t, school.TransferNewYear, report.DetectedType)
	assert.NotEmpty(t, report.Errors)

	s.decodeAs(s.do("POST", path, ValidateTransferRequest{ToClassID: &to.ID, Type: "new_year"}), http.StatusOK, &report)
	assert.True(t, report.Valid)
	assert.NotNil(t, report.Errors)

	assert.Equal(t, http.StatusBadRequest, s.do("POST", path, ValidateTransferRequest{Type: "graduation"}).Code)
}

// =============================================================================
// STATUS MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{school.NotFound("student", 1), http.StatusNotFound},
		{school.ErrAlreadyPaid, http.StatusConflict},
		{school.Invalid("name", "required"), http.StatusBadRequest},
		{school.ErrDuplicatePeriod, http.StatusBadRequest},
		{&school.WrongTransferTypeError{Requested: school.TransferSameYear, Detected: school.TransferNewYear}, http.StatusUnprocessableEntity},
		{school.Storage("insert", fmt.Errorf("disk full")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
