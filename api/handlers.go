/*
handlers.go - HTTP API handlers for the tuition engine

PURPOSE:
  Exposes roster, billing and transfer operations via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the domain
  packages.

ENDPOINTS:
  Classes:
    GET    /api/classes                     List classes
    POST   /api/classes                     Create class
    GET    /api/classes/{id}                Get class
    PUT    /api/classes/{id}                Update class
    DELETE /api/classes/{id}                Delete class
    GET    /api/classes/{id}/students       Students assigned to the class

  Students:
    GET    /api/students?status=&class_id=  List students
    POST   /api/students                    Enroll student
    GET    /api/students/inactive           Inactive students with debt
    GET    /api/students/{id}               Get student
    PUT    /api/students/{id}               Update name / birth date
    GET    /api/students/{id}/contracts     Contracts, oldest first
    GET    /api/students/{id}/charges       Charges by period
    GET    /api/students/{id}/statement?year=&as_of=  Billed, paid, outstanding
    POST   /api/students/{id}/charges/generate  Generate the school year
    POST   /api/students/{id}/contracts/{cid}/charges/generate  Bill an active contract

  Transfers:
    POST   /api/students/{id}/transfer            Auto-detected class move
    POST   /api/students/{id}/transfer/same-year  Same school year move
    POST   /api/students/{id}/transfer/new-year   Move into a new school year
    POST   /api/students/{id}/transfer/validate   Dry run
    POST   /api/students/{id}/deactivate
    POST   /api/students/{id}/reactivate
    GET    /api/students/{id}/transfers           Transfer history

  Charges:
    GET    /api/charges?student_id=&status=&year=&unpaid=
    GET    /api/charges/{id}
    GET    /api/charges/{id}/preview?date=  Policy evaluation, no write
    POST   /api/charges/{id}/pay            Pay with policy adjustments
    POST   /api/charges/{id}/payment        Pay with explicit adjustments
    POST   /api/charges/{id}/cancel-payment
    POST   /api/charges/{id}/void

  Settings / Admin:
    GET    /api/settings/billing-policy
    PUT    /api/settings/billing-policy
    POST   /api/admin/recalculate-statuses

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: SQLite store (settings, reset, health)
  - Roster, Generator, Ledger, Transfers: domain services sharing the store
  - PolicyFactory: JSON to billing.Policy conversion

ERROR HANDLING:
  Errors are returned as JSON. The HTTP status follows the error kind:
  - 400: ErrValidation, malformed body, failed struct validation
  - 404: ErrNotFound
  - 409: ErrInvalidState (already paid, already inactive, class in use...)
  - 422: ErrWrongTransferType
  - 500: everything else (logged)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/factory"
	"github.com/warp/tuition-engine/roster"
	"github.com/warp/tuition-engine/school"
	"github.com/warp/tuition-engine/store/sqlite"
	"github.com/warp/tuition-engine/transfer"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options carries the configured defaults the handler starts with.
type Options struct {
	PreEnrollment billing.PreEnrollmentPolicy
	// Policy is used until a policy has been saved through the settings
	// endpoint.
	Policy billing.Policy
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         *sqlite.Store
	Roster        *roster.Service
	Generator     *billing.Generator
	Ledger        *billing.Ledger
	Transfers     *transfer.Engine
	PolicyFactory *factory.PolicyFactory

	validate *validator.Validate
	log      *zap.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the domain services onto store.
func NewHandler(store *sqlite.Store, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	gen := billing.NewGenerator(store, opts.PreEnrollment, log)
	return &Handler{
		Store:         store,
		Roster:        roster.NewService(store, gen, log),
		Generator:     gen,
		Ledger:        billing.NewLedger(store, opts.Policy, log),
		Transfers:     transfer.NewEngine(store, log),
		PolicyFactory: factory.NewPolicyFactory(),
		validate:      newValidator(),
		log:           log.Named("api"),
	}
}

// LoadPolicy replaces the configured billing policy with the stored one.
// When nothing is stored yet the configured policy is persisted.
func (h *Handler) LoadPolicy(ctx context.Context) error {
	raw, ok, err := h.Store.GetSetting(ctx, factory.SettingBillingPolicy)
	if err != nil {
		return err
	}
	if !ok {
		return h.savePolicy(ctx, h.Ledger.Policy())
	}
	p, err := h.PolicyFactory.ParsePolicy(raw)
	if err != nil {
		return err
	}
	return h.Ledger.SetPolicy(p)
}

func (h *Handler) savePolicy(ctx context.Context, p billing.Policy) error {
	raw, err := h.PolicyFactory.ToJSON(p)
	if err != nil {
		return err
	}
	return h.Store.SaveSetting(ctx, factory.SettingBillingPolicy, raw)
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// CLASS HANDLERS
// =============================================================================

// ListClasses returns all classes.
func (h *Handler) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.Roster.ListClasses(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list classes", err)
		return
	}
	dtos := make([]ClassDTO, len(classes))
	for i, c := range classes {
		dtos[i] = toClassDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClass returns a single class.
func (h *Handler) GetClass(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid class id", err)
		return
	}
	c, err := h.Roster.GetClass(r.Context(), school.ClassID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get class", err)
		return
	}
	writeJSON(w, http.StatusOK, toClassDTO(c))
}

// CreateClass creates a class.
func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req ClassRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	c, err := h.Roster.CreateClass(r.Context(), req.toClass(0))
	if err != nil {
		h.writeDomainError(w, "Failed to create class", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClassDTO(c))
}

// UpdateClass replaces a class's fields.
func (h *Handler) UpdateClass(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid class id", err)
		return
	}
	var req ClassRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	c, err := h.Roster.UpdateClass(r.Context(), req.toClass(school.ClassID(id)))
	if err != nil {
		h.writeDomainError(w, "Failed to update class", err)
		return
	}
	writeJSON(w, http.StatusOK, toClassDTO(c))
}

// DeleteClass removes a class nobody references.
func (h *Handler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid class id", err)
		return
	}
	if err := h.Roster.DeleteClass(r.Context(), school.ClassID(id)); err != nil {
		h.writeDomainError(w, "Failed to delete class", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListClassStudents returns the students assigned to a class.
func (h *Handler) ListClassStudents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid class id", err)
		return
	}
	if _, err := h.Roster.GetClass(r.Context(), school.ClassID(id)); err != nil {
		h.writeDomainError(w, "Failed to get class", err)
		return
	}
	students, err := h.Roster.ListStudents(r.Context(), school.StudentFilter{ClassID: school.ClassID(id)})
	if err != nil {
		h.writeDomainError(w, "Failed to list students", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTOs(students))
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns students, optionally filtered by status and class.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	f := school.StudentFilter{Status: school.StudentStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("class_id"); raw != "" {
		id, err := parseID("class_id", raw)
		if err != nil {
			h.writeDomainError(w, "Invalid class_id", err)
			return
		}
		f.ClassID = school.ClassID(id)
	}
	students, err := h.Roster.ListStudents(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, "Failed to list students", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTOs(students))
}

// GetStudent returns a single student.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	st, err := h.Roster.GetStudent(r.Context(), school.StudentID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get student", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(st))
}

// EnrollStudent creates a student with a contract and, on request, the
// school year's charges.
func (h *Handler) EnrollStudent(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	enrolled, err := school.ParseDate("enrollment_date", req.EnrollmentDate)
	if err != nil {
		h.writeDomainError(w, "Invalid enrollment_date", err)
		return
	}
	birth, err := optionalDate("birth_date", req.BirthDate)
	if err != nil {
		h.writeDomainError(w, "Invalid birth_date", err)
		return
	}

	res, err := h.Roster.Enroll(r.Context(), roster.EnrollRequest{
		Name:            req.Name,
		BirthDate:       birth,
		ClassID:         school.ClassID(req.ClassID),
		MonthlyAmount:   req.MonthlyAmount,
		EnrollmentDate:  enrolled,
		GenerateCharges: req.GenerateCharges,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to enroll student", err)
		return
	}
	writeJSON(w, http.StatusCreated, EnrollResponse{
		Student:        toStudentDTO(res.Student),
		ContractID:     int64(res.ContractID),
		ChargesCreated: res.ChargesCreated,
	})
}

// UpdateStudent edits the descriptive fields of a student. Class, status
// and amount only change through transfers.
func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	var req UpdateStudentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	birth, err := optionalDate("birth_date", req.BirthDate)
	if err != nil {
		h.writeDomainError(w, "Invalid birth_date", err)
		return
	}
	st, err := h.Roster.UpdateStudentDetails(r.Context(), school.StudentID(id), req.Name, birth)
	if err != nil {
		h.writeDomainError(w, "Failed to update student", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(st))
}

// GetContracts returns a student's contracts.
func (h *Handler) GetContracts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	contracts, err := h.Roster.Contracts(r.Context(), school.StudentID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to list contracts", err)
		return
	}
	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListInactiveStudents reports inactive students with their unpaid debt.
func (h *Handler) ListInactiveStudents(w http.ResponseWriter, r *http.Request) {
	inactive, err := h.Transfers.ListInactiveStudents(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list inactive students", err)
		return
	}
	dtos := make([]InactiveStudentDTO, len(inactive))
	for i, in := range inactive {
		dtos[i] = toInactiveStudentDTO(in)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CHARGE HANDLERS
// =============================================================================

// GetStudentCharges returns one student's charges ordered by period.
func (h *Handler) GetStudentCharges(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	if _, err := h.Roster.GetStudent(r.Context(), school.StudentID(id)); err != nil {
		h.writeDomainError(w, "Failed to get student", err)
		return
	}
	charges, err := h.Ledger.Charges(r.Context(), school.ChargeFilter{StudentID: school.StudentID(id)})
	if err != nil {
		h.writeDomainError(w, "Failed to list charges", err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTOs(charges))
}

// GetStatement summarizes a student's charges for one school year.
// ?as_of defaults to today and ?year to the as_of year.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	asOf, err := optionalDate("as_of", r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeDomainError(w, "Invalid date", err)
		return
	}
	if asOf.IsZero() {
		asOf = school.Today()
	}
	year := asOf.Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err = strconv.Atoi(raw)
		if err != nil {
			h.writeDomainError(w, "Invalid year", school.Invalid("year", "must be a number"))
			return
		}
	}
	st, err := h.Ledger.Statement(r.Context(), school.StudentID(id), year, asOf)
	if err != nil {
		h.writeDomainError(w, "Failed to build statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// GenerateCharges creates the school year's charges for a student.
func (h *Handler) GenerateCharges(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	res, err := h.Generator.GenerateForStudent(r.Context(), school.StudentID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to generate charges", err)
		return
	}
	writeJSON(w, http.StatusCreated, GenerateResponse{
		ChargesCreated: res.ChargesCreated,
		Exempt:         res.Exempt,
	})
}

// GenerateContractCharges bills an active contract, typically the one a
// reactivation opened in another school year.
func (h *Handler) GenerateContractCharges(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	contractID, err := pathID(r, "cid")
	if err != nil {
		h.writeDomainError(w, "Invalid contract id", err)
		return
	}
	created, err := h.Generator.GenerateForContract(r.Context(), school.StudentID(id), school.ContractID(contractID))
	if err != nil {
		h.writeDomainError(w, "Failed to generate charges", err)
		return
	}
	writeJSON(w, http.StatusCreated, GenerateResponse{ChargesCreated: created})
}

// ListCharges returns charges across students.
//
// Query parameters:
//   - student_id: one student
//   - status: comma-separated statuses (pending,overdue)
//   - year: period year
//   - unpaid: "true" for pending + overdue
func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	f, err := chargeFilter(r)
	if err != nil {
		h.writeDomainError(w, "Invalid query", err)
		return
	}
	charges, err := h.Ledger.Charges(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, "Failed to list charges", err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTOs(charges))
}

func chargeFilter(r *http.Request) (school.ChargeFilter, error) {
	q := r.URL.Query()
	var f school.ChargeFilter
	if raw := q.Get("student_id"); raw != "" {
		id, err := parseID("student_id", raw)
		if err != nil {
			return f, err
		}
		f.StudentID = school.StudentID(id)
	}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := school.ChargeStatus(strings.TrimSpace(s))
			if !status.Valid() {
				return f, school.Invalid("status", "unknown charge status "+string(status))
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year <= 0 {
			return f, school.Invalid("year", "must be a positive year")
		}
		f.Year = year
	}
	if raw := q.Get("unpaid"); raw != "" {
		unpaid, err := strconv.ParseBool(raw)
		if err != nil {
			return f, school.Invalid("unpaid", "must be true or false")
		}
		f.Unpaid = unpaid
	}
	return f, nil
}

// GetCharge returns a single charge.
func (h *Handler) GetCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid charge id", err)
		return
	}
	c, err := h.Store.GetCharge(r.Context(), school.ChargeID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get charge", err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTO(c))
}

// PreviewCharge evaluates the billing policy for a hypothetical payment
// date. Without ?date= the charge is evaluated as awaiting payment.
func (h *Handler) PreviewCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid charge id", err)
		return
	}
	var date *school.Date
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := school.ParseDate("date", raw)
		if err != nil {
			h.writeDomainError(w, "Invalid date", err)
			return
		}
		date = &d
	}
	ev, err := h.Ledger.Preview(r.Context(), school.ChargeID(id), date)
	if err != nil {
		h.writeDomainError(w, "Failed to preview charge", err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationDTO(ev))
}

// PayCharge pays a charge with the discount and late fee the policy
// computes for the payment date.
func (h *Handler) PayCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid charge id", err)
		return
	}
	var req PayRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	paid, err := school.ParseDate("payment_date", req.PaymentDate)
	if err != nil {
		h.writeDomainError(w, "Invalid payment_date", err)
		return
	}
	c, ev, err := h.Ledger.Pay(r.Context(), school.ChargeID(id), paid, req.Other, req.Notes)
	if err != nil {
		h.writeDomainError(w, "Failed to pay charge", err)
		return
	}
	writeJSON(w, http.StatusOK, PayResponse{Charge: toChargeDTO(c), Evaluation: toEvaluationDTO(ev)})
}

// RecordPayment pays a charge with explicit adjustments.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid charge id", err)
		return
	}
	var req RecordPaymentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	paid, err := school.ParseDate("payment_date", req.PaymentDate)
	if err != nil {
		h.writeDomainError(w, "Invalid payment_date", err)
		return
	}
	c, err := h.Ledger.RecordPayment(r.Context(), billing.PaymentInput{
		ChargeID:    school.ChargeID(id),
		PaymentDate: paid,
		Discount:    req.Discount,
		LateFee:     req.LateFee,
		Other:       req.Other,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTO(c))
}

// CancelPayment reverts a paid charge to pending.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid charge id", err)
		return
	}
	c, err := h.Ledger.CancelPayment(r.Context(), school.ChargeID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to cancel payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTO(c))
}

// VoidCharge writes off an unpaid charge.
func (h *Handler) VoidCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid charge id", err)
		return
	}
	var req VoidRequest
	if err := h.decodeOptional(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	c, err := h.Ledger.Void(r.Context(), school.ChargeID(id), req.Notes)
	if err != nil {
		h.writeDomainError(w, "Failed to void charge", err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTO(c))
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

// Transfer moves a student, detecting same-year or new-year from the
// classes' school years.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	var req TransferRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	res, err := h.Transfers.Transfer(r.Context(), transfer.TransferRequest{
		StudentID:    school.StudentID(id),
		ToClassID:    school.ClassID(req.ToClassID),
		ChangeAmount: req.ChangeAmount,
		Amount:       req.Amount,
		Reason:       req.Reason,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "Transfer failed", err)
		return
	}
	switch {
	case res.SameYear != nil:
		writeJSON(w, http.StatusOK, sameYearResponse(*res.SameYear))
	case res.NewYear != nil:
		writeJSON(w, http.StatusOK, newYearResponse(*res.NewYear))
	default:
		h.writeDomainError(w, "Transfer failed", errors.New("transfer produced no result"))
	}
}

// TransferSameYear moves a student within the school year.
func (h *Handler) TransferSameYear(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	var req SameYearRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	res, err := h.Transfers.SameYear(r.Context(), transfer.SameYearRequest{
		StudentID:    school.StudentID(id),
		FromClassID:  school.ClassID(req.FromClassID),
		ToClassID:    school.ClassID(req.ToClassID),
		ChangeAmount: req.ChangeAmount,
		NewAmount:    req.NewAmount,
		Reason:       req.Reason,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "Transfer failed", err)
		return
	}
	writeJSON(w, http.StatusOK, sameYearResponse(res))
}

// TransferNewYear moves a student into another school year.
func (h *Handler) TransferNewYear(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	var req NewYearRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	res, err := h.Transfers.NewYear(r.Context(), transfer.NewYearRequest{
		StudentID:         school.StudentID(id),
		FromClassID:       school.ClassID(req.FromClassID),
		ToClassID:         school.ClassID(req.ToClassID),
		NewContractAmount: req.NewContractAmount,
		Reason:            req.Reason,
		Notes:             req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "Transfer failed", err)
		return
	}
	writeJSON(w, http.StatusOK, newYearResponse(res))
}

// Deactivate takes a student off the roster, keeping their debt.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	var req DeactivateRequest
	if err := h.decodeOptional(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	res, err := h.Transfers.Deactivate(r.Context(), transfer.DeactivateRequest{
		StudentID: school.StudentID(id),
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "Deactivation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, deactivateResponse(res))
}

// Reactivate brings an inactive student back into a class.
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	var req ReactivateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	res, err := h.Transfers.Reactivate(r.Context(), transfer.ReactivateRequest{
		StudentID:        school.StudentID(id),
		ToClassID:        school.ClassID(req.ToClassID),
		NewMonthlyAmount: req.NewMonthlyAmount,
		Reason:           req.Reason,
		Notes:            req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "Reactivation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, reactivateResponse(res))
}

// ValidateTransfer reports whether an operation could run, without writing.
// Broken preconditions come back as 200 with valid=false.
func (h *Handler) ValidateTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	var req ValidateTransferRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	op, err := school.ParseTransferType(req.Type)
	if err != nil {
		h.writeDomainError(w, "Invalid type", err)
		return
	}
	var target *school.ClassID
	if req.ToClassID != nil {
		t := school.ClassID(*req.ToClassID)
		target = &t
	}
	report, err := h.Transfers.Validate(r.Context(), school.StudentID(id), target, op)
	if err != nil {
		h.writeDomainError(w, "Validation failed", err)
		return
	}
	if report.Errors == nil {
		report.Errors = []string{}
	}
	if report.Warnings == nil {
		report.Warnings = []string{}
	}
	writeJSON(w, http.StatusOK, report)
}

// GetTransferHistory returns a student's transfer history.
func (h *Handler) GetTransferHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, "Invalid student id", err)
		return
	}
	entries, err := h.Transfers.History(r.Context(), school.StudentID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get history", err)
		return
	}
	dtos := make([]TransferEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toTransferEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SETTINGS / ADMIN HANDLERS
// =============================================================================

// GetBillingPolicy returns the policy in force.
func (h *Handler) GetBillingPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToPolicyJSON(h.Ledger.Policy()))
}

// UpdateBillingPolicy validates, stores and applies a new policy. It only
// affects payments recorded afterwards.
func (h *Handler) UpdateBillingPolicy(w http.ResponseWriter, r *http.Request) {
	var req factory.PolicyJSON
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	p, err := h.PolicyFactory.FromJSON(req)
	if err != nil {
		h.writeDomainError(w, "Invalid billing policy", err)
		return
	}
	if err := h.savePolicy(r.Context(), p); err != nil {
		h.writeDomainError(w, "Failed to save billing policy", err)
		return
	}
	if err := h.Ledger.SetPolicy(p); err != nil {
		h.writeDomainError(w, "Failed to apply billing policy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToPolicyJSON(p))
}

// RecalculateStatuses marks pending charges past due as overdue.
func (h *Handler) RecalculateStatuses(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if err := h.decodeOptional(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	asOf := school.Today()
	if req.AsOf != "" {
		d, err := school.ParseDate("as_of", req.AsOf)
		if err != nil {
			h.writeDomainError(w, "Invalid as_of", err)
			return
		}
		asOf = d
	}
	n, err := h.Ledger.RecalculateStatuses(r.Context(), asOf)
	if err != nil {
		h.writeDomainError(w, "Failed to recalculate statuses", err)
		return
	}
	writeJSON(w, http.StatusOK, RecalculateResponse{AsOf: asOf, Updated: n})
}

// ResetDatabase clears all data. Settings survive.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeDomainError(w, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health pings the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps err to a status by kind. Server-side failures are
// logged; client errors are not.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		resp := ErrorResponse{Error: message, Details: "validation failed", Fields: map[string]string{}}
		for _, fe := range fields {
			resp.Fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, school.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, school.ErrWrongTransferType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, school.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, school.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst and validates its struct tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return school.Invalid("body", err.Error())
	}
	return h.validate.Struct(dst)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return school.Invalid("body", err.Error())
	}
	return h.validate.Struct(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	return parseID(name, chi.URLParam(r, name))
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, school.Invalid(field, "must be a positive integer")
	}
	return id, nil
}

func optionalDate(field, raw string) (school.Date, error) {
	if raw == "" {
		return school.Date{}, nil
	}
	return school.ParseDate(field, raw)
}

func toStudentDTOs(students []school.Student) []StudentDTO {
	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
	}
	return dtos
}

func toChargeDTOs(charges []school.Charge) []ChargeDTO {
	dtos := make([]ChargeDTO, len(charges))
	for i, c := range charges {
		dtos[i] = toChargeDTO(c)
	}
	return dtos
}
