package server

import (
	"github.com/buildfund/onboard/pkg/api"
)

// section is one of the completion buckets the percentage is computed from.
type section struct {
	name string
	done func(collected map[string]string, docsUploaded bool) bool
}

var (
	profileSection = section{"profile", func(c map[string]string, _ bool) bool {
		return c["first_name"] != ""
	}}
	contactSection = section{"contact", func(c map[string]string, _ bool) bool {
		return c["phone_number"] != ""
	}}
	addressSection = section{"address", func(c map[string]string, _ bool) bool {
		return c["postcode"] != ""
	}}
	companySection = section{"company", func(c map[string]string, _ bool) bool {
		return c["company_registration_number"] != "" || c["company_skipped"] == "true"
	}}
	financialSection = section{"financial", func(c map[string]string, _ bool) bool {
		return c["annual_income"] != "" || c["financial_licences"] != ""
	}}
	documentsSection = section{"documents", func(_ map[string]string, docsUploaded bool) bool {
		return docsUploaded
	}}
)

func sectionsForRole(role Role) []section {
	switch role {
	case RoleLender:
		return []section{profileSection, contactSection, addressSection, companySection, financialSection, documentsSection}
	case RoleAdmin:
		return []section{profileSection, contactSection}
	default:
		return []section{profileSection, contactSection, addressSection, companySection, financialSection, documentsSection}
	}
}

// progressFor computes the completion state for a session. Reaching the
// final step always reports full completion, regardless of skipped optional
// sections.
func progressFor(role Role, currentStep string, collected map[string]string, docsUploaded bool) api.Progress {
	if currentStep == StepComplete {
		return api.Progress{
			IsComplete:           true,
			CompletionPercentage: 100,
			CurrentStep:          currentStep,
		}
	}

	sections := sectionsForRole(role)
	completed := 0
	for _, s := range sections {
		if s.done(collected, docsUploaded) {
			completed++
		}
	}
	pct := 0
	if len(sections) > 0 {
		pct = completed * 100 / len(sections)
	}
	return api.Progress{
		CompletionPercentage: pct,
		CurrentStep:          currentStep,
	}
}
