// Package importer moves leads between CSV files and the lead store.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"leadpipe/internal/leads/domain"
	"leadpipe/platform/logger"
)

// RequiredColumns must be present in every import header.
var RequiredColumns = []string{"Firstname", "Lastname", "Email", "Phone1"}

// column binds one CSV header to a Contact field.
type column struct {
	header string
	field  func(*domain.Contact) *string
}

var columns = []column{
	{"Firstname", func(c *domain.Contact) *string { return &c.FirstName }},
	{"Lastname", func(c *domain.Contact) *string { return &c.LastName }},
	{"Email", func(c *domain.Contact) *string { return &c.Email }},
	{"Phone1", func(c *domain.Contact) *string { return &c.Phone }},
	{"Address", func(c *domain.Contact) *string { return &c.Address }},
	{"Address2", func(c *domain.Contact) *string { return &c.Address2 }},
	{"City", func(c *domain.Contact) *string { return &c.City }},
	{"State", func(c *domain.Contact) *string { return &c.State }},
	{"Zip", func(c *domain.Contact) *string { return &c.Zip }},
	{"Gender", func(c *domain.Contact) *string { return &c.Gender }},
	{"Dob", func(c *domain.Contact) *string { return &c.DOB }},
	{"Ip", func(c *domain.Contact) *string { return &c.IP }},
	{"Subid 2", func(c *domain.Contact) *string { return &c.SubID2 }},
	{"Signup Url", func(c *domain.Contact) *string { return &c.SignupURL }},
	{"Consent Url", func(c *domain.Contact) *string { return &c.ConsentURL }},
	{"Education Level", func(c *domain.Contact) *string { return &c.EducationLevel }},
	{"Grad Year", func(c *domain.Contact) *string { return &c.GradYear }},
	{"Start Date", func(c *domain.Contact) *string { return &c.StartDate }},
	{"Military Type", func(c *domain.Contact) *string { return &c.MilitaryType }},
	{"Campus Type", func(c *domain.Contact) *string { return &c.CampusType }},
	{"Area Of Study", func(c *domain.Contact) *string { return &c.AreaOfStudy }},
	{"Level Of Interest", func(c *domain.Contact) *string { return &c.LevelOfInterest }},
	{"Computer with Internet", func(c *domain.Contact) *string { return &c.ComputerWithInternet }},
	{"US Citizen", func(c *domain.Contact) *string { return &c.USCitizen }},
	{"Registered Nurse", func(c *domain.Contact) *string { return &c.RegisteredNurse }},
	{"Teaching License", func(c *domain.Contact) *string { return &c.TeachingLicense }},
	{"Enroll Status", func(c *domain.Contact) *string { return &c.EnrollStatus }},
}

// ErrMissingColumns is returned when the header lacks a required column.
var ErrMissingColumns = errors.New("csv file missing required columns")

// Creator is the part of the store an import needs.
type Creator interface {
	Create(ctx context.Context, contact domain.Contact) (domain.Lead, error)
}

// RowError describes one rejected data row. Row is 1-based, excluding the header.
type RowError struct {
	Row int    `json:"row"`
	Err string `json:"error"`
}

// Result summarises an import.
type Result struct {
	Imported int        `json:"imported"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Import reads a CSV with a header row and creates one PENDING lead per data
// row. Row failures are counted and reported, not fatal. Headers match
// case-insensitively; unknown headers are ignored.
func Import(ctx context.Context, r io.Reader, store Creator, log *logger.Logger) (Result, error) {
	if log == nil {
		log = logger.Nop()
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("%w: empty file", ErrMissingColumns)
	}
	if err != nil {
		return Result{}, fmt.Errorf("read csv header: %w", err)
	}
	index, err := mapHeader(header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	row := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			res.fail(row, err)
			continue
		}
		if blank(record) {
			row--
			continue
		}

		contact := toContact(record, index)
		if err := validateContact(contact); err != nil {
			res.fail(row, err)
			continue
		}
		if _, err := store.Create(ctx, contact); err != nil {
			log.DatabaseError("create lead", err)
			res.fail(row, err)
			continue
		}
		res.Imported++
	}

	log.Info("csv import completed", "imported", res.Imported, "failed", res.Failed)
	return res, nil
}

func (r *Result) fail(row int, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RowError{Row: row, Err: err.Error()})
}

// mapHeader returns column index -> position in columns.
func mapHeader(header []string) (map[int]int, error) {
	byName := make(map[string]int, len(columns))
	for i, col := range columns {
		byName[strings.ToLower(col.header)] = i
	}

	index := make(map[int]int, len(header))
	present := make(map[string]bool, len(header))
	for pos, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if i, ok := byName[key]; ok {
			index[pos] = i
			present[key] = true
		}
	}

	var missing []string
	for _, req := range RequiredColumns {
		if !present[strings.ToLower(req)] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return index, nil
}

func toContact(record []string, index map[int]int) domain.Contact {
	var c domain.Contact
	for pos, value := range record {
		if i, ok := index[pos]; ok {
			*columns[i].field(&c) = strings.TrimSpace(value)
		}
	}
	return c
}

func validateContact(c domain.Contact) error {
	var missing []string
	if c.FirstName == "" {
		missing = append(missing, "Firstname")
	}
	if c.Phone == "" {
		missing = append(missing, "Phone1")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing value for %s", strings.Join(missing, ", "))
	}
	return nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
