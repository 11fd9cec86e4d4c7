/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the records in school/ (which carry no JSON tags) from the external API
  contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Classes:    ClassDTO, ClassRequest
  Students:   StudentDTO, EnrollRequest, UpdateStudentRequest, ContractDTO
  Charges:    ChargeDTO, RecordPaymentRequest, PayRequest, EvaluationDTO
  Transfers:  TransferRequest, SameYearRequest, NewYearRequest,
              DeactivateRequest, ReactivateRequest, ValidateTransferRequest,
              TransferEntryDTO, TransferResponse
  Scenarios:  ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Structural checks use go-playground/validator struct tags and run in
  decode(). Money is decimal.Decimal, accepted as a JSON string or number;
  sign and range rules live in the domain packages.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type (billing-policy settings body)
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/school"
	"github.com/warp/tuition-engine/transfer"
)

// =============================================================================
// CLASSES
// =============================================================================

type ClassDTO struct {
	ID                   int64            `json:"id"`
	Name                 string           `json:"name"`
	Grade                string           `json:"grade,omitempty"`
	SchoolYear           string           `json:"school_year"`
	DefaultMonthlyAmount *decimal.Decimal `json:"default_monthly_amount,omitempty"`
	DueDay               int              `json:"due_day"`
}

// ClassRequest is the body of class create and update.
type ClassRequest struct {
	Name                 string           `json:"name" validate:"required,max=120"`
	Grade                string           `json:"grade" validate:"max=60"`
	SchoolYear           string           `json:"school_year" validate:"required,len=4,numeric"`
	DefaultMonthlyAmount *decimal.Decimal `json:"default_monthly_amount"`
	DueDay               int              `json:"due_day" validate:"min=0,max=31"`
}

// =============================================================================
// STUDENTS
// =============================================================================

type StudentDTO struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	BirthDate          school.Date     `json:"birth_date"`
	Status             string          `json:"status"`
	ClassID            int64           `json:"class_id"`
	MonthlyAmount      decimal.Decimal `json:"monthly_amount"`
	EnrollmentDate     school.Date     `json:"enrollment_date"`
	DeactivatedOn      *school.Date    `json:"deactivated_on,omitempty"`
	DeactivationReason string          `json:"deactivation_reason,omitempty"`
}

type EnrollRequest struct {
	Name            string          `json:"name" validate:"required,max=120"`
	BirthDate       string          `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	ClassID         int64           `json:"class_id" validate:"required,gt=0"`
	MonthlyAmount   decimal.Decimal `json:"monthly_amount"`
	EnrollmentDate  string          `json:"enrollment_date" validate:"required,datetime=2006-01-02"`
	GenerateCharges bool            `json:"generate_charges"`
}

type EnrollResponse struct {
	Student        StudentDTO `json:"student"`
	ContractID     int64      `json:"contract_id"`
	ChargesCreated int        `json:"charges_created"`
}

type UpdateStudentRequest struct {
	Name      string `json:"name" validate:"required,max=120"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
}

type ContractDTO struct {
	ID            int64           `json:"id"`
	StudentID     int64           `json:"student_id"`
	ClassID       int64           `json:"class_id"`
	SchoolYear    string          `json:"school_year"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	StartDate     school.Date     `json:"start_date"`
	EndDate       *school.Date    `json:"end_date,omitempty"`
	Status        string          `json:"status"`
}

type InactiveStudentDTO struct {
	Student      StudentDTO      `json:"student"`
	PendingCount int             `json:"pending_count"`
	PendingValue decimal.Decimal `json:"pending_value"`
}

// =============================================================================
// CHARGES
// =============================================================================

type ChargeDTO struct {
	ID          int64           `json:"id"`
	StudentID   int64           `json:"student_id"`
	ContractID  *int64          `json:"contract_id,omitempty"`
	Period      string          `json:"period"`
	Original    decimal.Decimal `json:"original"`
	Discount    decimal.Decimal `json:"discount"`
	LateFee     decimal.Decimal `json:"late_fee"`
	Other       decimal.Decimal `json:"other"`
	Final       decimal.Decimal `json:"final"`
	DueDate     school.Date     `json:"due_date"`
	PaidOn      *school.Date    `json:"paid_on,omitempty"`
	Status      string          `json:"status"`
	FeeEligible bool            `json:"fee_eligible"`
	Notes       string          `json:"notes,omitempty"`
}

type GenerateResponse struct {
	ChargesCreated int `json:"charges_created"`
	Exempt         int `json:"exempt"`
}

// RecordPaymentRequest records a payment with explicit adjustments.
type RecordPaymentRequest struct {
	PaymentDate string          `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Discount    decimal.Decimal `json:"discount"`
	LateFee     decimal.Decimal `json:"late_fee"`
	Other       decimal.Decimal `json:"other"`
	Notes       string          `json:"notes" validate:"max=500"`
}

// PayRequest records a payment with adjustments computed by the billing
// policy.
type PayRequest struct {
	PaymentDate string          `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Other       decimal.Decimal `json:"other"`
	Notes       string          `json:"notes" validate:"max=500"`
}

type VoidRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

type EvaluationDTO struct {
	Final    decimal.Decimal `json:"final"`
	Discount decimal.Decimal `json:"discount"`
	LateFee  decimal.Decimal `json:"late_fee"`
	DaysLate int             `json:"days_late"`
	Note     string          `json:"note,omitempty"`
}

// StatementDTO is a student's billing position for one school year.
type StatementDTO struct {
	StudentID        int64           `json:"student_id"`
	Year             int             `json:"year"`
	AsOf             school.Date     `json:"as_of"`
	Billed           decimal.Decimal `json:"billed"`
	Discounts        decimal.Decimal `json:"discounts"`
	LateFees         decimal.Decimal `json:"late_fees"`
	Paid             decimal.Decimal `json:"paid"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	PastDue          decimal.Decimal `json:"past_due"`
	PaidCount        int             `json:"paid_count"`
	OutstandingCount int             `json:"outstanding_count"`
	PastDueCount     int             `json:"past_due_count"`
	VoidCount        int             `json:"void_count"`
	NextDue          *ChargeDTO      `json:"next_due,omitempty"`
}

type PayResponse struct {
	Charge     ChargeDTO     `json:"charge"`
	Evaluation EvaluationDTO `json:"evaluation"`
}

type RecalculateRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

type RecalculateResponse struct {
	AsOf    school.Date `json:"as_of"`
	Updated int         `json:"updated"`
}

// =============================================================================
// TRANSFERS
// =============================================================================

// TransferRequest is the auto-detecting transfer body.
type TransferRequest struct {
	ToClassID    int64           `json:"to_class_id" validate:"required,gt=0"`
	ChangeAmount bool            `json:"change_amount"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason" validate:"max=200"`
	Notes        string          `json:"notes" validate:"max=500"`
}

type SameYearRequest struct {
	FromClassID  int64           `json:"from_class_id" validate:"required,gt=0"`
	ToClassID    int64           `json:"to_class_id" validate:"required,gt=0,nefield=FromClassID"`
	ChangeAmount bool            `json:"change_amount"`
	NewAmount    decimal.Decimal `json:"new_amount"`
	Reason       string          `json:"reason" validate:"max=200"`
	Notes        string          `json:"notes" validate:"max=500"`
}

// NewYearRequest promotes into another school year. A zero or omitted
// new_contract_amount takes the target class's default.
type NewYearRequest struct {
	FromClassID       int64           `json:"from_class_id" validate:"required,gt=0"`
	ToClassID         int64           `json:"to_class_id" validate:"required,gt=0,nefield=FromClassID"`
	NewContractAmount decimal.Decimal `json:"new_contract_amount"`
	Reason            string          `json:"reason" validate:"max=200"`
	Notes             string          `json:"notes" validate:"max=500"`
}

type DeactivateRequest struct {
	Reason string `json:"reason" validate:"max=200"`
	Notes  string `json:"notes" validate:"max=500"`
}

// ReactivateRequest brings an inactive student back. A zero or omitted
// new_monthly_amount takes the target class's default.
type ReactivateRequest struct {
	ToClassID        int64           `json:"to_class_id" validate:"required,gt=0"`
	NewMonthlyAmount decimal.Decimal `json:"new_monthly_amount"`
	Reason           string          `json:"reason" validate:"max=200"`
	Notes            string          `json:"notes" validate:"max=500"`
}

type ValidateTransferRequest struct {
	ToClassID *int64 `json:"to_class_id" validate:"omitempty,gt=0"`
	Type      string `json:"type" validate:"required,oneof=same_year new_year deactivation reactivation"`
}

type TransferEntryDTO struct {
	ID             int64           `json:"id"`
	OperationID    string          `json:"operation_id"`
	StudentID      int64           `json:"student_id"`
	FromClassID    *int64          `json:"from_class_id"`
	ToClassID      *int64          `json:"to_class_id"`
	Type           string          `json:"type"`
	FromSchoolYear string          `json:"from_school_year,omitempty"`
	ToSchoolYear   string          `json:"to_school_year,omitempty"`
	PreviousAmount decimal.Decimal `json:"previous_amount"`
	NewAmount      decimal.Decimal `json:"new_amount"`
	AmountChanged  bool            `json:"amount_changed"`
	TransferDate   school.Date     `json:"transfer_date"`
	Reason         string          `json:"reason,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Timestamp      string          `json:"timestamp"`
}

// TransferResponse is shared by every transfer operation; fields that the
// operation does not produce are omitted.
type TransferResponse struct {
	Type              string           `json:"type"`
	Entry             TransferEntryDTO `json:"entry"`
	ChargesUpdated    *int             `json:"charges_updated,omitempty"`
	ContractID        *int64           `json:"contract_id,omitempty"`
	ClosedContracts   *int             `json:"closed_contracts,omitempty"`
	ChargesGenerated  *int             `json:"charges_generated,omitempty"`
	PendingsPreserved *int             `json:"pendings_preserved,omitempty"`
	OutstandingCount  *int             `json:"outstanding_count,omitempty"`
	OutstandingTotal  *decimal.Decimal `json:"outstanding_total,omitempty"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toClassDTO(c school.Class) ClassDTO {
	return ClassDTO{
		ID:                   int64(c.ID),
		Name:                 c.Name,
		Grade:                c.Grade,
		SchoolYear:           c.SchoolYear,
		DefaultMonthlyAmount: c.DefaultMonthlyAmount,
		DueDay:               c.DueDay,
	}
}

func (r ClassRequest) toClass(id school.ClassID) school.Class {
	return school.Class{
		ID:                   id,
		Name:                 r.Name,
		Grade:                r.Grade,
		SchoolYear:           r.SchoolYear,
		DefaultMonthlyAmount: r.DefaultMonthlyAmount,
		DueDay:               r.DueDay,
	}
}

func toStudentDTO(s school.Student) StudentDTO {
	return StudentDTO{
		ID:                 int64(s.ID),
		Name:               s.Name,
		BirthDate:          s.BirthDate,
		Status:             string(s.Status),
		ClassID:            int64(s.ClassID),
		MonthlyAmount:      s.MonthlyAmount,
		EnrollmentDate:     s.EnrollmentDate,
		DeactivatedOn:      s.DeactivatedOn,
		DeactivationReason: s.DeactivationReason,
	}
}

func toContractDTO(c school.Contract) ContractDTO {
	return ContractDTO{
		ID:            int64(c.ID),
		StudentID:     int64(c.StudentID),
		ClassID:       int64(c.ClassID),
		SchoolYear:    c.SchoolYear,
		MonthlyAmount: c.MonthlyAmount,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
		Status:        string(c.Status),
	}
}

func toInactiveStudentDTO(in transfer.InactiveStudent) InactiveStudentDTO {
	return InactiveStudentDTO{
		Student:      toStudentDTO(in.Student),
		PendingCount: in.PendingCount,
		PendingValue: in.PendingValue,
	}
}

func toChargeDTO(c school.Charge) ChargeDTO {
	dto := ChargeDTO{
		ID:          int64(c.ID),
		StudentID:   int64(c.StudentID),
		Period:      c.Period.String(),
		Original:    c.Original,
		Discount:    c.Discount,
		LateFee:     c.LateFee,
		Other:       c.Other,
		Final:       c.Final,
		DueDate:     c.DueDate,
		PaidOn:      c.PaidOn,
		Status:      string(c.Status),
		FeeEligible: c.FeeEligible,
		Notes:       c.Notes,
	}
	if c.ContractID != nil {
		id := int64(*c.ContractID)
		dto.ContractID = &id
	}
	return dto
}

func toStatementDTO(st billing.Statement) StatementDTO {
	dto := StatementDTO{
		StudentID:        int64(st.StudentID),
		Year:             st.Year,
		AsOf:             st.AsOf,
		Billed:           st.Billed,
		Discounts:        st.Discounts,
		LateFees:         st.LateFees,
		Paid:             st.Paid,
		Outstanding:      st.Outstanding,
		PastDue:          st.PastDue,
		PaidCount:        st.PaidCount,
		OutstandingCount: st.OutstandingCount,
		PastDueCount:     st.PastDueCount,
		VoidCount:        st.VoidCount,
	}
	if st.NextDue != nil {
		next := toChargeDTO(*st.NextDue)
		dto.NextDue = &next
	}
	return dto
}

func toEvaluationDTO(e billing.Evaluation) EvaluationDTO {
	return EvaluationDTO{
		Final:    e.Final,
		Discount: e.Discount,
		LateFee:  e.LateFee,
		DaysLate: e.DaysLate,
		Note:     e.Note,
	}
}

func toTransferEntryDTO(e school.TransferEntry) TransferEntryDTO {
	return TransferEntryDTO{
		ID:             int64(e.ID),
		OperationID:    e.OperationID,
		StudentID:      int64(e.StudentID),
		FromClassID:    classIDPtr(e.FromClassID),
		ToClassID:      classIDPtr(e.ToClassID),
		Type:           string(e.Type),
		FromSchoolYear: e.FromSchoolYear,
		ToSchoolYear:   e.ToSchoolYear,
		PreviousAmount: e.PreviousAmount,
		NewAmount:      e.NewAmount,
		AmountChanged:  e.AmountChanged,
		TransferDate:   e.TransferDate,
		Reason:         e.Reason,
		Notes:          e.Notes,
		Timestamp:      e.Timestamp.Format(time.RFC3339),
	}
}

func classIDPtr(id *school.ClassID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func sameYearResponse(r transfer.SameYearResult) TransferResponse {
	return TransferResponse{
		Type:           string(school.TransferSameYear),
		Entry:          toTransferEntryDTO(r.Entry),
		ChargesUpdated: &r.ChargesUpdated,
	}
}

func newYearResponse(r transfer.NewYearResult) TransferResponse {
	contractID := int64(r.ContractID)
	return TransferResponse{
		Type:              string(school.TransferNewYear),
		Entry:             toTransferEntryDTO(r.Entry),
		ContractID:        &contractID,
		ClosedContracts:   &r.ClosedContracts,
		ChargesGenerated:  &r.ChargesGenerated,
		PendingsPreserved: &r.PendingsPreserved,
	}
}

func deactivateResponse(r transfer.DeactivateResult) TransferResponse {
	return TransferResponse{
		Type:             string(school.TransferDeactivation),
		Entry:            toTransferEntryDTO(r.Entry),
		OutstandingCount: &r.OutstandingCount,
		OutstandingTotal: &r.OutstandingTotal,
	}
}

func reactivateResponse(r transfer.ReactivateResult) TransferResponse {
	contractID := int64(r.ContractID)
	return TransferResponse{
		Type:       string(school.TransferReactivation),
		Entry:      toTransferEntryDTO(r.Entry),
		ContractID: &contractID,
	}
}
