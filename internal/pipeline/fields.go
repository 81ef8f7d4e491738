package pipeline

import (
	"strings"

	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
)

// Form field names understood by BuildFormFields.
const (
	FieldFirstName      = "first_name"
	FieldLastName       = "last_name"
	FieldEmail          = "email"
	FieldPhone          = "phone"
	FieldAddress        = "address"
	FieldAddress2       = "address2"
	FieldCity           = "city"
	FieldState          = "state"
	FieldZip            = "zip"
	FieldEducationLevel = "education_level"
	FieldAreaOfStudy    = "area_of_study"
	FieldGradYear       = "grad_year"
	FieldStartDate      = "start_date"
)

// DefaultFormFields is the intake form layout used when no profile overrides it.
func DefaultFormFields() []ports.FormField {
	input := func(name string) ports.FormField {
		return ports.FormField{Name: name, Selector: "input[name='" + name + "']", Kind: ports.FieldInput}
	}
	return []ports.FormField{
		input(FieldFirstName),
		input(FieldLastName),
		input(FieldEmail),
		input(FieldPhone),
		input(FieldAddress),
		input(FieldAddress2),
		input(FieldCity),
		input(FieldState),
		input(FieldZip),
		input(FieldEducationLevel),
		{Name: FieldAreaOfStudy, Selector: "select[name='area_of_study']", Kind: ports.FieldSelect},
		input(FieldGradYear),
		input(FieldStartDate),
	}
}

// DefaultTCPASelectors are tried in order when consent was given.
func DefaultTCPASelectors() []string {
	return []string{
		"input[name='tcpa_consent']",
		"input[name='tcpa_opt_in']",
		"input[id*='tcpa']",
		"input[id*='consent']",
		"input[type='checkbox']",
	}
}

// BuildFormFields resolves a value for every layout field, preferring the
// confirmed value over the imported one. Fields without a value or with an
// unknown name are left out.
func BuildFormFields(lead domain.Lead, layout []ports.FormField) []ports.FormField {
	out := make([]ports.FormField, 0, len(layout))
	for _, f := range layout {
		value, ok := fieldValue(lead, f.Name)
		if !ok || strings.TrimSpace(value) == "" || f.Selector == "" {
			continue
		}
		if f.Kind == "" {
			f.Kind = ports.FieldInput
		}
		f.Value = value
		out = append(out, f)
	}
	return out
}

func fieldValue(lead domain.Lead, name string) (string, bool) {
	switch name {
	case FieldFirstName:
		return lead.FirstName, true
	case FieldLastName:
		return lead.LastName, true
	case FieldEmail:
		return lead.EffectiveEmail(), true
	case FieldPhone:
		return lead.EffectivePhone(), true
	case FieldAddress:
		return lead.EffectiveAddress(), true
	case FieldAddress2:
		return lead.Address2, true
	case FieldCity:
		return lead.City, true
	case FieldState:
		return lead.State, true
	case FieldZip:
		return lead.Zip, true
	case FieldEducationLevel:
		return lead.EducationLevel, true
	case FieldAreaOfStudy:
		return lead.EffectiveAreaOfStudy(), true
	case FieldGradYear:
		return lead.GradYear, true
	case FieldStartDate:
		return lead.StartDate, true
	}
	return "", false
}
