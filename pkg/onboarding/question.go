package onboarding

import (
	"github.com/buildfund/onboard/pkg/api"
)

// Kind is the client-side discriminant of a question. The wire format is
// stringly typed and open-ended; everything unknown collapses to free text
// so an older client still renders a usable input.
type Kind int

const (
	KindFreeText Kind = iota
	KindNumber
	KindDate
	KindSingleSelect
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindFreeText:
		return "free-text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindSingleSelect:
		return "single-select"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// KindFromWire maps a wire type string onto a Kind. Email and phone entry
// are plain text as far as the renderer is concerned.
func KindFromWire(s string) Kind {
	switch s {
	case api.KindNumber:
		return KindNumber
	case api.KindDate:
		return KindDate
	case api.KindSelect:
		return KindSingleSelect
	case api.KindFile:
		return KindFile
	default:
		return KindFreeText
	}
}

// Question is the fully typed form of the current prompt. It is replaced
// wholesale with every server response, never mutated.
type Question struct {
	Kind       Kind
	Prompt     string
	Options    []string
	Required   bool
	StepKey    string
	StepNumber int
	TotalSteps int

	// Progress is the completion percentage the server attached to this
	// question, if any. Used for the progress suffix on the rendered turn.
	Progress *int
}

// Placeholder returns the input hint for the question, if it has one. Date
// answers are submitted verbatim; the hint is display-only.
func (q Question) Placeholder() string {
	switch q.Kind {
	case KindDate:
		return "DD/MM/YYYY"
	case KindNumber:
		return "e.g. 50000"
	case KindFreeText, KindSingleSelect, KindFile:
		return ""
	default:
		return ""
	}
}

func questionFromWire(q api.Question) Question {
	out := Question{
		Kind:       KindFromWire(q.Kind),
		Prompt:     q.Prompt,
		Required:   q.Required,
		StepKey:    q.Step,
		StepNumber: q.StepNumber,
		TotalSteps: q.TotalSteps,
	}
	if len(q.Options) > 0 {
		out.Options = make([]string, len(q.Options))
		copy(out.Options, q.Options)
	}
	if q.Progress != nil {
		p := *q.Progress
		out.Progress = &p
	}
	return out
}
