package importer

import (
	"encoding/csv"
	"io"

	"leadpipe/internal/leads/domain"
)

// exportColumns follow the import columns in every export.
var exportColumns = []struct {
	header string
	value  func(domain.Lead) string
}{
	{"Status", func(l domain.Lead) string { return l.Status.Label() }},
	{"TCPA Accepted", func(l domain.Lead) string {
		if l.Confirmed.TCPAAccepted != nil && *l.Confirmed.TCPAAccepted {
			return "Yes"
		}
		return "No"
	}},
	{"Confirmed Area of Interest", func(l domain.Lead) string { return l.Confirmed.AreaOfInterest }},
	{"Call Recording URL", func(l domain.Lead) string { return l.Call.ArtifactURL }},
	{"Call Notes", func(l domain.Lead) string { return l.Call.Notes }},
	{"Entry Notes", func(l domain.Lead) string { return l.Entry.Notes }},
}

// Export writes leads in the import layout plus their pipeline state.
func Export(w io.Writer, leads []domain.Lead) error {
	writer := csv.NewWriter(w)

	header := make([]string, 0, len(columns)+len(exportColumns))
	for _, col := range columns {
		header = append(header, col.header)
	}
	for _, col := range exportColumns {
		header = append(header, col.header)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, lead := range leads {
		contact := lead.Contact
		record := make([]string, 0, len(header))
		for _, col := range columns {
			record = append(record, *col.field(&contact))
		}
		for _, col := range exportColumns {
			record = append(record, col.value(lead))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
