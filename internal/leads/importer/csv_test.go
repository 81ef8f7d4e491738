package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"leadpipe/internal/leads/domain"

	"github.com/google/uuid"
)

type fakeCreator struct {
	created []domain.Contact
	failOn  string
}

func (f *fakeCreator) Create(_ context.Context, c domain.Contact) (domain.Lead, error) {
	if f.failOn != "" && c.Email == f.failOn {
		return domain.Lead{}, errors.New("duplicate key")
	}
	f.created = append(f.created, c)
	return domain.Lead{ID: uuid.New(), Contact: c, Status: domain.StatusPending}, nil
}

func TestImportMapsColumns(t *testing.T) {
	input := "Firstname,Lastname,Email,Phone1,Subid 2,area of study,Unknown\n" +
		"John,Doe,john@example.com,(201) 555-0101,abc,Nursing,x\n" +
		"\n" +
		"Jane, Roe ,jane@example.com,2015550102,,Business,y\n"
	store := &fakeCreator{}

	res, err := Import(context.Background(), strings.NewReader(input), store, nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	john := store.created[0]
	if john.FirstName != "John" || john.SubID2 != "abc" || john.AreaOfStudy != "Nursing" || john.Phone != "(201) 555-0101" {
		t.Fatalf("unexpected contact: %+v", john)
	}
	if store.created[1].LastName != "Roe" {
		t.Fatalf("values should be trimmed, got %q", store.created[1].LastName)
	}
}

func TestImportRequiresColumns(t *testing.T) {
	_, err := Import(context.Background(), strings.NewReader("Firstname,Email\nJohn,john@example.com\n"), &fakeCreator{}, nil)
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
	if !strings.Contains(err.Error(), "Lastname, Phone1") {
		t.Fatalf("error should name the missing columns: %v", err)
	}

	if _, err := Import(context.Background(), strings.NewReader(""), &fakeCreator{}, nil); !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected empty file error, got %v", err)
	}
}

func TestImportCountsRowFailures(t *testing.T) {
	input := "Firstname,Lastname,Email,Phone1\n" +
		"John,Doe,john@example.com,2015550101\n" +
		",NoName,none@example.com,2015550102\n" +
		"Dup,Lead,dup@example.com,2015550103\n"
	store := &fakeCreator{failOn: "dup@example.com"}

	res, err := Import(context.Background(), strings.NewReader(input), store, nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 1 || res.Failed != 2 || len(res.Errors) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Errors[0].Row != 2 || res.Errors[1].Row != 3 {
		t.Fatalf("unexpected row numbers: %+v", res.Errors)
	}
}

func TestExportRoundTripsContactColumns(t *testing.T) {
	accepted := true
	lead := domain.Lead{
		Contact:   domain.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "2015550123"},
		Confirmed: domain.Confirmed{TCPAAccepted: &accepted, AreaOfInterest: "math"},
		Status:    domain.StatusEntered,
	}
	var buf bytes.Buffer
	if err := Export(&buf, []domain.Lead{lead}); err != nil {
		t.Fatalf("export: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d", len(records))
	}
	row := map[string]string{}
	for i, h := range records[0] {
		row[h] = records[1][i]
	}
	if row["Firstname"] != "Ada" || row["Status"] != "ENTERED" || row["TCPA Accepted"] != "Yes" || row["Confirmed Area of Interest"] != "math" {
		t.Fatalf("unexpected export row: %+v", row)
	}

	store := &fakeCreator{}
	res, err := Import(context.Background(), bytes.NewReader(buf.Bytes()), store, nil)
	if err != nil || res.Imported != 1 || store.created[0] != lead.Contact {
		t.Fatalf("export should re-import: res=%+v err=%v", res, err)
	}
}
