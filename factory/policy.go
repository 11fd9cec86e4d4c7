/*
Package factory provides JSON to Go billing-policy conversion.

PURPOSE:
  Converts JSON policy definitions into billing.Policy values. The billing
  policy is edited from the admin API and stored as JSON in the settings
  table, so the same schema is used on the wire and at rest.

JSON SCHEMA:
  {
    "discount_amount": "10.00",
    "discount_deadline_days": 5,
    "late_fee_per_day": "2.00",
    "grace_days": 30
  }

  Money fields are decimal strings; numbers are accepted too. Missing
  fields default to zero (no discount, no late fee).

USAGE:
  factory := NewPolicyFactory()

  policy, err := factory.ParsePolicy(jsonString)
  jsonStr, err := factory.ToJSON(policy)

SEE ALSO:
  - billing/policy.go: Policy type definition
  - api/handlers.go: GET/PUT /api/settings/billing-policy
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/billing"
)

// SettingBillingPolicy is the settings key the policy is stored under.
const SettingBillingPolicy = "billing_policy"

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a billing policy.
type PolicyJSON struct {
	DiscountAmount       decimal.Decimal `json:"discount_amount"`
	DiscountDeadlineDays int             `json:"discount_deadline_days"`
	LateFeePerDay        decimal.Decimal `json:"late_fee_per_day"`
	GraceDays            int             `json:"grace_days"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a validated Policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (billing.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return billing.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts a PolicyJSON struct into a validated Policy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (billing.Policy, error) {
	p := billing.Policy{
		DiscountAmount:       pj.DiscountAmount,
		DiscountDeadlineDays: pj.DiscountDeadlineDays,
		LateFeePerDay:        pj.LateFeePerDay,
		GraceDays:            pj.GraceDays,
	}
	if err := p.Validate(); err != nil {
		return billing.Policy{}, err
	}
	return p, nil
}

// ToPolicyJSON is the inverse of FromJSON.
func (f *PolicyFactory) ToPolicyJSON(p billing.Policy) PolicyJSON {
	return PolicyJSON{
		DiscountAmount:       p.DiscountAmount,
		DiscountDeadlineDays: p.DiscountDeadlineDays,
		LateFeePerDay:        p.LateFeePerDay,
		GraceDays:            p.GraceDays,
	}
}

// ToJSON serializes a policy for storage.
func (f *PolicyFactory) ToJSON(p billing.Policy) (string, error) {
	b, err := json.Marshal(f.ToPolicyJSON(p))
	if err != nil {
		return "", fmt.Errorf("failed to serialize policy: %w", err)
	}
	return string(b), nil
}
