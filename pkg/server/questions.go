package server

import (
	"fmt"
	"strings"

	"github.com/buildfund/onboard/pkg/api"
)

// questionTemplate is the static part of a step's prompt. Prompts may carry
// {formatted_address}, {company_name} and {summary} placeholders which are
// resolved against the session's collected data.
type questionTemplate struct {
	Prompt   string
	Field    string
	Kind     string
	Options  []string
	Required bool
	Multiple bool
}

var questionTemplates = map[string]questionTemplate{
	StepWelcome: {
		Prompt:   "Hi! 👋 Welcome to BuildFund. I'm here to help you complete your profile. This will only take a few minutes, and you can save your progress at any time. Shall we begin?",
		Field:    "welcome_acknowledged",
		Kind:     api.KindSelect,
		Options:  []string{"Yes, let's start", "Maybe later"},
		Required: true,
	},
	StepProfileName: {
		Prompt:   "Great! Let's start with your name. What's your first name?",
		Field:    "first_name",
		Kind:     api.KindText,
		Required: true,
	},
	StepProfileDOB: {
		Prompt:   "Thanks! Now, what's your date of birth? (Please enter in format: DD/MM/YYYY)",
		Field:    "date_of_birth",
		Kind:     api.KindDate,
		Required: true,
	},
	StepProfileNationality: {
		Prompt:   "What's your nationality?",
		Field:    "nationality",
		Kind:     api.KindText,
		Required: true,
	},
	StepContactPhone: {
		Prompt:   "What's your phone number? (Please include country code, e.g., +44 for UK)",
		Field:    "phone_number",
		Kind:     api.KindPhone,
		Required: true,
	},
	StepAddressCollection: {
		Prompt:   "Now let's get your address. What's your postcode?",
		Field:    "postcode",
		Kind:     api.KindText,
		Required: true,
	},
	StepAddressVerification: {
		Prompt:   "I found your address. Is this correct? {formatted_address}",
		Field:    "address_confirmed",
		Kind:     api.KindSelect,
		Options:  []string{"Yes, that's correct", "No, let me enter it manually"},
		Required: true,
	},
	StepCompanyCollection: {
		Prompt: "Do you have a company registration number? (If yes, please provide it. If no, type 'skip')",
		Field:  "company_registration_number",
		Kind:   api.KindText,
	},
	StepCompanyVerification: {
		Prompt:   "I've verified your company details. Is {company_name} correct?",
		Field:    "company_confirmed",
		Kind:     api.KindSelect,
		Options:  []string{"Yes, that's correct", "No, that's wrong"},
		Required: true,
	},
	StepDirectorVerification: {
		Prompt:   "I need to verify you're a director of this company. What's your full name as registered with Companies House?",
		Field:    "director_name",
		Kind:     api.KindText,
		Required: true,
	},
	StepFinancialIncome: {
		Prompt:   "What's your annual income? (Please enter the amount in GBP, e.g., 50000)",
		Field:    "annual_income",
		Kind:     api.KindNumber,
		Required: true,
	},
	StepFinancialEmployment: {
		Prompt:   "What's your employment status?",
		Field:    "employment_status",
		Kind:     api.KindSelect,
		Options:  []string{"Employed", "Self-employed", "Retired", "Student", "Other"},
		Required: true,
	},
	StepFinancialExpenses: {
		Prompt: "What are your approximate monthly expenses? (Please enter the amount in GBP)",
		Field:  "monthly_expenses",
		Kind:   api.KindNumber,
	},
	StepExperienceCollection: {
		Prompt: "How many years of experience do you have in property development?",
		Field:  "experience_years",
		Kind:   api.KindNumber,
	},
	StepFCARegistration: {
		Prompt: "Do you have an FCA registration number? (If yes, please provide it. If no, type 'skip')",
		Field:  "fca_registration_number",
		Kind:   api.KindText,
	},
	StepFinancialLicences: {
		Prompt: "What financial licences does your organisation hold? (Please list them, or type 'none')",
		Field:  "financial_licences",
		Kind:   api.KindText,
	},
	StepKeyPersonnel: {
		Prompt: "Who are the key personnel in your organisation? (Please provide names and positions, or type 'skip')",
		Field:  "key_personnel",
		Kind:   api.KindText,
	},
	StepDocumentsCollection: {
		Prompt:   "Now I need some documents. Please upload: 1) Proof of identity (passport or driving licence), 2) Proof of address (utility bill or bank statement). You can drag and drop files here or click to browse.",
		Field:    "documents",
		Kind:     api.KindFile,
		Required: true,
		Multiple: true,
	},
	StepReview: {
		Prompt:   "Great! Let me review what we've collected.\n{summary}\nDoes everything look correct?",
		Field:    "review_confirmed",
		Kind:     api.KindSelect,
		Options:  []string{"Yes, everything is correct", "No, I need to make changes"},
		Required: true,
	},
	StepComplete: {
		Prompt:  "Perfect! 🎉 Your profile is now complete. You can now submit applications and access all features. Is there anything else you'd like to update?",
		Field:   "complete",
		Kind:    api.KindSelect,
		Options: []string{"No, I'm done", "Yes, I want to update something"},
	},
	StepPaused: {
		Prompt:  "No problem! Come back whenever you're ready. Your progress is saved.",
		Field:   "resume",
		Kind:    api.KindSelect,
		Options: []string{"Resume now"},
	},
}

// questionForStep renders the template for a step against the session's
// collected data and annotates it with progress figures.
func questionForStep(role Role, step string, collected map[string]string, completion int) api.Question {
	tpl, ok := questionTemplates[step]
	if !ok {
		tpl = questionTemplate{
			Prompt: "Thank you! Your profile is complete.",
			Kind:   api.KindText,
		}
		step = StepComplete
	}

	prompt := tpl.Prompt
	if strings.Contains(prompt, "{formatted_address}") {
		addr := collected["formatted_address"]
		if addr == "" {
			addr = "the address"
		}
		prompt = strings.ReplaceAll(prompt, "{formatted_address}", addr)
	}
	if strings.Contains(prompt, "{company_name}") {
		name := collected["company_name"]
		if name == "" {
			name = "the company"
		}
		prompt = strings.ReplaceAll(prompt, "{company_name}", name)
	}
	if strings.Contains(prompt, "{summary}") {
		prompt = strings.ReplaceAll(prompt, "{summary}", collectedSummary(collected))
	}

	steps := stepsForRole(role)
	q := api.Question{
		Prompt:     prompt,
		Step:       step,
		Field:      tpl.Field,
		Kind:       tpl.Kind,
		Required:   tpl.Required,
		Multiple:   tpl.Multiple,
		Progress:   &completion,
		StepNumber: stepIndex(steps, step) + 1,
		TotalSteps: len(steps),
	}
	if len(tpl.Options) > 0 {
		q.Options = make([]string, len(tpl.Options))
		copy(q.Options, tpl.Options)
	}
	return q
}

// collectedSummary renders the review overview of everything gathered so far.
func collectedSummary(collected map[string]string) string {
	var parts []string
	if v := collected["first_name"]; v != "" {
		parts = append(parts, "Name: "+v)
	}
	if v := collected["phone_number"]; v != "" {
		parts = append(parts, "Phone: "+v)
	}
	if v := collected["postcode"]; v != "" {
		parts = append(parts, "Postcode: "+v)
	}
	if v := collected["company_registration_number"]; v != "" {
		parts = append(parts, "Company: "+v)
	}
	if v := collected["annual_income"]; v != "" {
		parts = append(parts, fmt.Sprintf("Income: £%s", v))
	}
	if len(parts) == 0 {
		return "No data collected yet."
	}
	return strings.Join(parts, "\n")
}
