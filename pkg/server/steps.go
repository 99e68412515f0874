package server

// Role determines which onboarding sequence a session walks through.
type Role string

const (
	RoleBorrower Role = "Borrower"
	RoleLender   Role = "Lender"
	RoleAdmin    Role = "Admin"
)

const (
	StepWelcome              = "welcome"
	StepProfileName          = "profile_name"
	StepProfileDOB           = "profile_dob"
	StepProfileNationality   = "profile_nationality"
	StepContactPhone         = "contact_phone"
	StepAddressCollection    = "address_collection"
	StepAddressVerification  = "address_verification"
	StepCompanyCollection    = "company_collection"
	StepCompanyVerification  = "company_verification"
	StepDirectorVerification = "director_verification"
	StepFinancialIncome      = "financial_income"
	StepFinancialEmployment  = "financial_employment"
	StepFinancialExpenses    = "financial_expenses"
	StepExperienceCollection = "experience_collection"
	StepFCARegistration      = "fca_registration"
	StepFinancialLicences    = "financial_licences"
	StepKeyPersonnel         = "key_personnel"
	StepDocumentsCollection  = "documents_collection"
	StepReview               = "review"
	StepComplete             = "complete"
	StepPaused               = "paused"
)

var borrowerSteps = []string{
	StepWelcome,
	StepProfileName,
	StepProfileDOB,
	StepProfileNationality,
	StepContactPhone,
	StepAddressCollection,
	StepAddressVerification,
	StepCompanyCollection,
	StepCompanyVerification,
	StepDirectorVerification,
	StepFinancialIncome,
	StepFinancialEmployment,
	StepFinancialExpenses,
	StepExperienceCollection,
	StepDocumentsCollection,
	StepReview,
	StepComplete,
}

var lenderSteps = []string{
	StepWelcome,
	StepProfileName,
	StepContactPhone,
	StepAddressCollection,
	StepAddressVerification,
	StepCompanyCollection,
	StepCompanyVerification,
	StepFCARegistration,
	StepFinancialLicences,
	StepKeyPersonnel,
	StepDocumentsCollection,
	StepReview,
	StepComplete,
}

var adminSteps = []string{
	StepWelcome,
	StepProfileName,
	StepContactPhone,
	StepComplete,
}

func stepsForRole(role Role) []string {
	switch role {
	case RoleBorrower:
		return borrowerSteps
	case RoleLender:
		return lenderSteps
	case RoleAdmin:
		return adminSteps
	default:
		return borrowerSteps
	}
}

func stepIndex(steps []string, step string) int {
	for i, s := range steps {
		if s == step {
			return i
		}
	}
	return 0
}

// nextStep advances by one, clamped to the final step.
func nextStep(steps []string, current string) string {
	idx := stepIndex(steps, current)
	if idx < len(steps)-1 {
		return steps[idx+1]
	}
	return steps[len(steps)-1]
}

// stepAfter returns the step following target, skipping over any steps in
// the skip set. Used when an optional collection step is skipped and its
// dependent verification step makes no sense to ask.
func stepAfter(steps []string, current string, skip ...string) string {
	idx := stepIndex(steps, current)
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}
	for i := idx + 1; i < len(steps); i++ {
		if !skipSet[steps[i]] {
			return steps[i]
		}
	}
	return steps[len(steps)-1]
}
