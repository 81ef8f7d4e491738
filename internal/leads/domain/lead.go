package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact holds the fields imported from the lead source.
type Contact struct {
	FirstName            string `json:"firstname"`
	LastName             string `json:"lastname"`
	Email                string `json:"email"`
	Phone                string `json:"phone1"`
	Address              string `json:"address"`
	Address2             string `json:"address2"`
	City                 string `json:"city"`
	State                string `json:"state"`
	Zip                  string `json:"zip"`
	Gender               string `json:"gender"`
	DOB                  string `json:"dob"`
	IP                   string `json:"ip"`
	SubID2               string `json:"subid_2"`
	SignupURL            string `json:"signup_url"`
	ConsentURL           string `json:"consent_url"`
	EducationLevel       string `json:"education_level"`
	GradYear             string `json:"grad_year"`
	StartDate            string `json:"start_date"`
	MilitaryType         string `json:"military_type"`
	CampusType           string `json:"campus_type"`
	AreaOfStudy          string `json:"area_of_study"`
	LevelOfInterest      string `json:"level_of_interest"`
	ComputerWithInternet string `json:"computer_with_internet"`
	USCitizen            string `json:"us_citizen"`
	RegisteredNurse      string `json:"registered_nurse"`
	TeachingLicense      string `json:"teaching_license"`
	EnrollStatus         string `json:"enroll_status"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Confirmed holds values the call stage verified with the lead. Empty
// strings mean "not confirmed".
type Confirmed struct {
	Address        string `json:"confirmed_address,omitempty"`
	Email          string `json:"confirmed_email,omitempty"`
	Phone          string `json:"confirmed_phone,omitempty"`
	AreaOfInterest string `json:"confirmed_area_of_interest,omitempty"`
	TCPAAccepted   *bool  `json:"tcpa_accepted,omitempty"`
}

// StageProgress tracks one stage's timing and attempts on the lead row.
type StageProgress struct {
	InitiatedAt *time.Time `json:"initiated_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    *float64   `json:"duration_seconds,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Attempts    int        `json:"attempts"`
	// ArtifactURL is the call recording or the entry screenshot.
	ArtifactURL string `json:"artifact_url,omitempty"`
}

// Lead is a contact record progressing through verification and intake.
type Lead struct {
	ID uuid.UUID `json:"id"`
	Contact
	Confirmed       Confirmed     `json:"confirmed"`
	Status          Status        `json:"status"`
	StatusUpdatedAt time.Time     `json:"status_updated_at"`
	Call            StageProgress `json:"call"`
	Entry           StageProgress `json:"entry"`
	LastError       string        `json:"last_error,omitempty"`
	ErrorCount      int           `json:"error_count"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Progress returns the stage-specific progress block.
func (l Lead) Progress(stage Stage) StageProgress {
	if stage == StageEntry {
		return l.Entry
	}
	return l.Call
}

// EffectiveEmail prefers the confirmed value over the imported one.
func (l Lead) EffectiveEmail() string { return firstNonEmpty(l.Confirmed.Email, l.Email) }

// EffectivePhone prefers the confirmed value over the imported one.
func (l Lead) EffectivePhone() string { return firstNonEmpty(l.Confirmed.Phone, l.Phone) }

// EffectiveAddress prefers the confirmed value over the imported one.
func (l Lead) EffectiveAddress() string { return firstNonEmpty(l.Confirmed.Address, l.Address) }

// EffectiveAreaOfStudy prefers the confirmed value over the imported one.
func (l Lead) EffectiveAreaOfStudy() string {
	return firstNonEmpty(l.Confirmed.AreaOfInterest, l.AreaOfStudy)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Outcome is the single terminal write a worker makes for its stage.
type Outcome struct {
	LeadID      uuid.UUID
	Stage       Stage
	To          Status
	CompletedAt time.Time
	Duration    *float64
	Notes       string
	LastError   string
	ArtifactURL string
	// Confirmed is only applied by the call stage.
	Confirmed *Confirmed
}

// StageLog is an append-only audit row written once per worker invocation.
type StageLog struct {
	ID          int64      `json:"id"`
	LeadID      uuid.UUID  `json:"lead_id"`
	Stage       Stage      `json:"stage"`
	InitiatedAt time.Time  `json:"initiated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	Duration    *float64   `json:"duration_seconds,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Error       string     `json:"error,omitempty"`
	ArtifactURL string     `json:"artifact_url,omitempty"`
}

// Statistics is the aggregate view served by the status endpoint.
type Statistics struct {
	TotalLeads   int            `json:"total_leads"`
	StatusCounts map[string]int `json:"status_counts"`
	CallsToday   int            `json:"calls_today"`
	EntriesToday int            `json:"entries_today"`
	SuccessRate  float64        `json:"success_rate"`
}

// ComputeSuccessRate sets SuccessRate to entered / (confirmed + entered) * 100.
func (s *Statistics) ComputeSuccessRate() {
	entered := s.StatusCounts[string(StatusEntered)]
	reached := s.StatusCounts[string(StatusConfirmed)] + entered
	if reached == 0 {
		s.SuccessRate = 0
		return
	}
	s.SuccessRate = float64(entered) / float64(reached) * 100
}
