/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates classes, enrolls students, records
	payments and runs transfers through the same services the API uses.

AVAILABLE SCENARIOS:

	mid-year-enrollment: June enrollment, Jan-May billed but fee-exempt
	payment-policy:      Early-payment discount and late fee after grace
	same-year-transfer:  Class change repricing the unpaid months
	new-year-transfer:   Promotion into next year, old debt preserved
	deactivation:        Student leaves with two months outstanding

HOW SCENARIOS WORK:
 1. Reset database (clear all data, settings survive)
 2. Create classes
 3. Enroll students with charge generation
 4. Record payments
 5. Optionally run a transfer

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "new-year-transfer"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
	payment-policy replaces the stored billing policy.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/roster"
	"github.com/warp/tuition-engine/school"
	"github.com/warp/tuition-engine/transfer"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "mid-year-enrollment",
		Name:        "Mid-Year Enrollment",
		Description: "Student enrolled in June; earlier months are billed but never carry late fees",
		Category:    "billing",
	},
	{
		ID:          "payment-policy",
		Name:        "Discount & Late Fee",
		Description: "June paid early with a discount, August paid 71 days late with a fee",
		Category:    "billing",
	},
	{
		ID:          "same-year-transfer",
		Name:        "Same-Year Transfer",
		Description: "Class change within 2025 repricing the unpaid months to 350.00",
		Category:    "transfer",
	},
	{
		ID:          "new-year-transfer",
		Name:        "New-Year Transfer",
		Description: "Promotion into 2026 at 400.00 while three 2025 months stay outstanding",
		Category:    "transfer",
	},
	{
		ID:          "deactivation",
		Name:        "Deactivation With Debt",
		Description: "Student leaves owing two months; shows up in the inactive report",
		Category:    "transfer",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		h.writeDomainError(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "mid-year-enrollment":
		load = h.loadMidYearEnrollmentScenario
	case "payment-policy":
		load = h.loadPaymentPolicyScenario
	case "same-year-transfer":
		load = h.loadSameYearTransferScenario
	case "new-year-transfer":
		load = h.loadNewYearTransferScenario
	case "deactivation":
		load = h.loadDeactivationScenario
	default:
		return school.Invalid("scenario_id", "unknown scenario "+id)
	}

	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		return err
	}
	h.currentScenario = id
	h.log.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadMidYearEnrollmentScenario(ctx context.Context) error {
	class, err := h.scenarioClass(ctx, "5th Grade A", "5", "2025", "300.00")
	if err != nil {
		return err
	}
	_, err = h.scenarioEnroll(ctx, "Ana Souza", class, "2025-06-15")
	return err
}

func (h *Handler) loadPaymentPolicyScenario(ctx context.Context) error {
	policy := billing.Policy{
		DiscountAmount:       decimal.NewFromInt(10),
		DiscountDeadlineDays: 5,
		LateFeePerDay:        decimal.NewFromInt(2),
		GraceDays:            30,
	}
	if err := h.savePolicy(ctx, policy); err != nil {
		return err
	}
	if err := h.Ledger.SetPolicy(policy); err != nil {
		return err
	}

	class, err := h.scenarioClass(ctx, "3rd Grade B", "3", "2025", "300.00")
	if err != nil {
		return err
	}
	enrolled, err := h.scenarioEnroll(ctx, "Bruno Lima", class, "2025-06-01")
	if err != nil {
		return err
	}
	id := enrolled.Student.ID

	// 2 days early: 300 - 10 = 290
	if err := h.scenarioPay(ctx, id, "2025-06", "2025-06-08"); err != nil {
		return err
	}
	// 71 days late, 41 past grace: 300 + 82 = 382
	if err := h.scenarioPay(ctx, id, "2025-08", "2025-10-20"); err != nil {
		return err
	}
	_, err = h.Ledger.RecalculateStatuses(ctx, school.NewDate(2025, 10, 20))
	return err
}

func (h *Handler) loadSameYearTransferScenario(ctx context.Context) error {
	from, err := h.scenarioClass(ctx, "4th Grade A", "4", "2025", "300.00")
	if err != nil {
		return err
	}
	to, err := h.scenarioClass(ctx, "4th Grade B (Full Day)", "4", "2025", "350.00")
	if err != nil {
		return err
	}
	enrolled, err := h.scenarioEnroll(ctx, "Carla Mendes", from, "2025-05-05")
	if err != nil {
		return err
	}
	id := enrolled.Student.ID
	for _, p := range []string{"2025-05", "2025-06"} {
		if err := h.scenarioPay(ctx, id, p, "2025-06-01"); err != nil {
			return err
		}
	}

	_, err = h.Transfers.SameYear(ctx, transfer.SameYearRequest{
		StudentID:    id,
		FromClassID:  from.ID,
		ToClassID:    to.ID,
		ChangeAmount: true,
		NewAmount:    school.MustMoney("350.00"),
		Reason:       "moved to full-day class",
	})
	return err
}

func (h *Handler) loadNewYearTransferScenario(ctx context.Context) error {
	from, err := h.scenarioClass(ctx, "5th Grade A", "5", "2025", "300.00")
	if err != nil {
		return err
	}
	to, err := h.scenarioClass(ctx, "6th Grade A", "6", "2026", "400.00")
	if err != nil {
		return err
	}
	enrolled, err := h.scenarioEnroll(ctx, "Diego Rocha", from, "2025-01-10")
	if err != nil {
		return err
	}
	id := enrolled.Student.ID
	for m := 1; m <= 9; m++ {
		period := fmt.Sprintf("2025-%02d", m)
		if err := h.scenarioPay(ctx, id, period, period+"-05"); err != nil {
			return err
		}
	}

	_, err = h.Transfers.NewYear(ctx, transfer.NewYearRequest{
		StudentID:         id,
		FromClassID:       from.ID,
		ToClassID:         to.ID,
		NewContractAmount: school.MustMoney("400.00"),
		Reason:            "promoted",
	})
	return err
}

func (h *Handler) loadDeactivationScenario(ctx context.Context) error {
	class, err := h.scenarioClass(ctx, "2nd Grade C", "2", "2025", "300.00")
	if err != nil {
		return err
	}
	enrolled, err := h.scenarioEnroll(ctx, "Elisa Prado", class, "2025-01-10")
	if err != nil {
		return err
	}
	id := enrolled.Student.ID
	for m := 1; m <= 10; m++ {
		period := fmt.Sprintf("2025-%02d", m)
		if err := h.scenarioPay(ctx, id, period, period+"-05"); err != nil {
			return err
		}
	}

	// Another student stays active so the roster isn't empty.
	if _, err := h.scenarioEnroll(ctx, "Felipe Costa", class, "2025-01-10"); err != nil {
		return err
	}

	_, err = h.Transfers.Deactivate(ctx, transfer.DeactivateRequest{
		StudentID: id,
		Reason:    "family moved abroad",
	})
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) scenarioClass(ctx context.Context, name, grade, year, amount string) (school.Class, error) {
	def := school.MustMoney(amount)
	return h.Roster.CreateClass(ctx, school.Class{
		Name:                 name,
		Grade:                grade,
		SchoolYear:           year,
		DefaultMonthlyAmount: &def,
		DueDay:               10,
	})
}

func (h *Handler) scenarioEnroll(ctx context.Context, name string, class school.Class, enrolled string) (roster.EnrollResult, error) {
	date, err := school.ParseDate("enrollment_date", enrolled)
	if err != nil {
		return roster.EnrollResult{}, err
	}
	return h.Roster.Enroll(ctx, roster.EnrollRequest{
		Name:            name,
		ClassID:         class.ID,
		EnrollmentDate:  date,
		GenerateCharges: true,
	})
}

// scenarioPay pays the student's charge for period through the billing
// policy.
func (h *Handler) scenarioPay(ctx context.Context, id school.StudentID, period, paidOn string) error {
	date, err := school.ParseDate("payment_date", paidOn)
	if err != nil {
		return err
	}
	charges, err := h.Ledger.Charges(ctx, school.ChargeFilter{StudentID: id})
	if err != nil {
		return err
	}
	for _, c := range charges {
		if c.Period.String() == period {
			_, _, err := h.Ledger.Pay(ctx, c.ID, date, decimal.Zero, "")
			return err
		}
	}
	return fmt.Errorf("scenario: student %d has no charge for %s", id, period)
}
