package repository

import (
	"fmt"
	"strings"
	"time"

	"leadpipe/internal/leads/domain"
)

// stageColumns names the lead columns owned by one stage.
type stageColumns struct {
	initiated string
	completed string
	duration  string
	notes     string
	attempts  string
	artifact  string
	// order is the selection order for eligible leads.
	order string
	logs  string
	// logArtifact is the artifact column of the log table.
	logArtifact string
}

var stageCols = map[domain.Stage]stageColumns{
	domain.StageCall: {
		initiated:   "call_initiated_at",
		completed:   "call_completed_at",
		duration:    "call_duration",
		notes:       "call_notes",
		attempts:    "call_attempts",
		artifact:    "call_recording_url",
		order:       "created_at",
		logs:        "call_logs",
		logArtifact: "recording_url",
	},
	domain.StageEntry: {
		initiated:   "entry_initiated_at",
		completed:   "entry_completed_at",
		duration:    "entry_duration",
		notes:       "entry_notes",
		attempts:    "entry_attempts",
		artifact:    "entry_screenshot_url",
		order:       "status_updated_at",
		logs:        "entry_logs",
		logArtifact: "screenshot_url",
	},
}

func columnsFor(stage domain.Stage) (stageColumns, error) {
	cols, ok := stageCols[stage]
	if !ok {
		return stageColumns{}, fmt.Errorf("unknown stage %q", stage)
	}
	return cols, nil
}

// contactColumns are the imported CSV fields in Contact field order.
var contactColumns = []string{
	"firstname", "lastname", "email", "phone1", "address", "address2", "city", "state", "zip",
	"gender", "dob", "ip", "subid_2", "signup_url", "consent_url", "education_level", "grad_year",
	"start_date", "military_type", "campus_type", "area_of_study", "level_of_interest",
	"computer_with_internet", "us_citizen", "registered_nurse", "teaching_license", "enroll_status",
}

func contactTargets(c *domain.Contact) []any {
	return []any{
		&c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Address, &c.Address2, &c.City, &c.State, &c.Zip,
		&c.Gender, &c.DOB, &c.IP, &c.SubID2, &c.SignupURL, &c.ConsentURL, &c.EducationLevel, &c.GradYear,
		&c.StartDate, &c.MilitaryType, &c.CampusType, &c.AreaOfStudy, &c.LevelOfInterest,
		&c.ComputerWithInternet, &c.USCitizen, &c.RegisteredNurse, &c.TeachingLicense, &c.EnrollStatus,
	}
}

func contactValues(c domain.Contact) []any {
	return []any{
		c.FirstName, c.LastName, c.Email, c.Phone, c.Address, c.Address2, c.City, c.State, c.Zip,
		c.Gender, c.DOB, c.IP, c.SubID2, c.SignupURL, c.ConsentURL, c.EducationLevel, c.GradYear,
		c.StartDate, c.MilitaryType, c.CampusType, c.AreaOfStudy, c.LevelOfInterest,
		c.ComputerWithInternet, c.USCitizen, c.RegisteredNurse, c.TeachingLicense, c.EnrollStatus,
	}
}

// stateColumns follow contactColumns in every lead SELECT.
var stateColumns = []string{
	"confirmed_address", "confirmed_email", "confirmed_phone", "confirmed_area_of_interest", "tcpa_accepted",
	"status", "status_updated_at",
	"call_initiated_at", "call_completed_at", "call_duration", "call_notes", "call_attempts", "call_recording_url",
	"entry_initiated_at", "entry_completed_at", "entry_duration", "entry_notes", "entry_attempts", "entry_screenshot_url",
	"last_error", "error_count", "created_at", "updated_at",
}

var leadSelectList = "id, " + strings.Join(contactColumns, ", ") + ", " + strings.Join(stateColumns, ", ")

// placeholders renders n bind parameters starting at start, either "$n" or "?".
func placeholders(n, start int, dollar bool) string {
	parts := make([]string, n)
	for i := range parts {
		if dollar {
			parts[i] = fmt.Sprintf("$%d", start+i)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// startOfDay is midnight UTC of t.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// confirmedArgs returns the confirmed-value parameters of a Complete update.
// Empty values leave the stored value untouched.
func confirmedArgs(c *domain.Confirmed) (address, email, phone, area any, tcpa any) {
	if c == nil {
		return nil, nil, nil, nil, nil
	}
	var accepted any
	if c.TCPAAccepted != nil {
		accepted = *c.TCPAAccepted
	}
	return nullIfEmpty(c.Address), nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.AreaOfInterest), accepted
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
