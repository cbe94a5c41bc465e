package domain

// Filing statuses accepted by the calculation endpoint.
const (
	FilingSingle          = "single"
	FilingMarriedJoint    = "married_joint"
	FilingMarriedSeparate = "married_separate"
	FilingHeadOfHousehold = "head_of_household"
)

// CalculationInput carries the household facts for an EITC estimate.
// Values are validated by the answering service, not by the client.
type CalculationInput struct {
	FilingStatus        string  `json:"filing_status"`
	AdjustedGrossIncome float64 `json:"adjusted_gross_income"`
	EarnedIncome        float64 `json:"earned_income"`
	InvestmentIncome    float64 `json:"investment_income"`
	QualifyingChildren  int     `json:"qualifying_children"`
	ChildrenAges        []int   `json:"children_ages"`
	TaxYear             int     `json:"tax_year,omitempty"`
}

// CalculationResult is the eligibility decision and estimated credit.
type CalculationResult struct {
	Eligible        bool            `json:"eligible"`
	CreditAmount    float64         `json:"credit_amount"`
	Explanation     []string        `json:"explanation"`
	RequirementsMet map[string]bool `json:"requirements_met"`
	TaxYear         int             `json:"tax_year"`
}
