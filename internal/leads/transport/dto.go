// Package transport holds the request and response shapes of the lead API.
package transport

import (
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/importer"
)

// CreateLeadRequest creates a PENDING lead. Field names follow the CSV import.
type CreateLeadRequest struct {
	FirstName            string `json:"firstname" validate:"required,max=100"`
	LastName             string `json:"lastname" validate:"required,max=100"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Phone                string `json:"phone1" validate:"required,min=7,max=32"`
	Address              string `json:"address" validate:"max=255"`
	Address2             string `json:"address2" validate:"max=255"`
	City                 string `json:"city" validate:"max=100"`
	State                string `json:"state" validate:"max=50"`
	Zip                  string `json:"zip" validate:"max=20"`
	Gender               string `json:"gender" validate:"max=20"`
	DOB                  string `json:"dob" validate:"max=20"`
	IP                   string `json:"ip" validate:"omitempty,ip"`
	SubID2               string `json:"subid_2" validate:"max=50"`
	SignupURL            string `json:"signup_url" validate:"omitempty,url"`
	ConsentURL           string `json:"consent_url" validate:"omitempty,url"`
	EducationLevel       string `json:"education_level" validate:"max=100"`
	GradYear             string `json:"grad_year" validate:"max=10"`
	StartDate            string `json:"start_date" validate:"max=50"`
	MilitaryType         string `json:"military_type" validate:"max=50"`
	CampusType           string `json:"campus_type" validate:"max=50"`
	AreaOfStudy          string `json:"area_of_study" validate:"max=100"`
	LevelOfInterest      string `json:"level_of_interest" validate:"max=50"`
	ComputerWithInternet string `json:"computer_with_internet" validate:"max=10"`
	USCitizen            string `json:"us_citizen" validate:"max=10"`
	RegisteredNurse      string `json:"registered_nurse" validate:"max=10"`
	TeachingLicense      string `json:"teaching_license" validate:"max=10"`
	EnrollStatus         string `json:"enroll_status" validate:"max=50"`
}

// Contact converts the request into the stored contact fields.
func (r CreateLeadRequest) Contact() domain.Contact {
	return domain.Contact{
		FirstName:            r.FirstName,
		LastName:             r.LastName,
		Email:                r.Email,
		Phone:                r.Phone,
		Address:              r.Address,
		Address2:             r.Address2,
		City:                 r.City,
		State:                r.State,
		Zip:                  r.Zip,
		Gender:               r.Gender,
		DOB:                  r.DOB,
		IP:                   r.IP,
		SubID2:               r.SubID2,
		SignupURL:            r.SignupURL,
		ConsentURL:           r.ConsentURL,
		EducationLevel:       r.EducationLevel,
		GradYear:             r.GradYear,
		StartDate:            r.StartDate,
		MilitaryType:         r.MilitaryType,
		CampusType:           r.CampusType,
		AreaOfStudy:          r.AreaOfStudy,
		LevelOfInterest:      r.LevelOfInterest,
		ComputerWithInternet: r.ComputerWithInternet,
		USCitizen:            r.USCitizen,
		RegisteredNurse:      r.RegisteredNurse,
		TeachingLicense:      r.TeachingLicense,
		EnrollStatus:         r.EnrollStatus,
	}
}

// OverrideStatusRequest is an operator status change.
type OverrideStatusRequest struct {
	Status string `json:"status" validate:"required,leadstatus"`
	Reason string `json:"reason" validate:"max=500"`
}

// ListLeadsQuery filters GET /leads.
type ListLeadsQuery struct {
	Status string `form:"status" validate:"omitempty,leadstatus"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset int    `form:"offset" validate:"omitempty,min=0"`
}

// LeadListResponse is a page of leads.
type LeadListResponse struct {
	Items  []domain.Lead `json:"items"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// LeadDetailResponse is one lead with its audit trail, newest first.
type LeadDetailResponse struct {
	Lead      domain.Lead       `json:"lead"`
	CallLogs  []domain.StageLog `json:"call_logs"`
	EntryLogs []domain.StageLog `json:"entry_logs"`
}

// ImportResponse acknowledges an uploaded CSV. Result is set when the import
// ran inline because no job queue is configured.
type ImportResponse struct {
	Key    string           `json:"key"`
	TaskID string           `json:"task_id,omitempty"`
	Result *importer.Result `json:"result,omitempty"`
}
