package record

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/model"
)

// ExportHeader is the column order of every export.
var ExportHeader = []string{
	"Company Name",
	"Domain",
	"Exec Search Category (Perplexity)",
	"Exec Search?",
	"Perplexity Research Notes",
	"Firm Niche",
	"Executive Name",
	"Executive Role",
	"Executive LinkedIn",
	"Email",
	"Email Template",
}

// Export formats.
const (
	FormatCSV = "csv"
	FormatTSV = "tsv"
)

var tsvEscaper = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", "\t", " ")

func exportRow(r model.Record) []string {
	return []string{
		r.CompanyName,
		r.Domain,
		r.ExecSearchCategory,
		string(r.ExecSearchStatus),
		r.PerplexityResearchNotes,
		r.FirmNiche,
		r.ExecutiveName,
		r.ExecutiveRole,
		r.ExecutiveLinkedIn,
		r.Email,
		r.EmailTemplate,
	}
}

// WriteExport renders recs as CSV (RFC 4180 quoting) or TSV (tabs and line
// breaks inside values flattened to spaces).
func WriteExport(w io.Writer, format string, recs []model.Record) error {
	switch format {
	case FormatCSV, "":
		cw := csv.NewWriter(w)
		if err := cw.Write(ExportHeader); err != nil {
			return eris.Wrap(err, "record: write csv header")
		}
		for _, r := range recs {
			if err := cw.Write(exportRow(r)); err != nil {
				return eris.Wrap(err, "record: write csv row")
			}
		}
		cw.Flush()
		return eris.Wrap(cw.Error(), "record: flush csv")
	case FormatTSV:
		if err := writeTSVLine(w, ExportHeader); err != nil {
			return err
		}
		for _, r := range recs {
			if err := writeTSVLine(w, exportRow(r)); err != nil {
				return err
			}
		}
		return nil
	default:
		return eris.Wrapf(ErrInvalid, "record: export format %q", format)
	}
}

func writeTSVLine(w io.Writer, cells []string) error {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = tsvEscaper.Replace(c)
	}
	if _, err := io.WriteString(w, strings.Join(out, "\t")+"\n"); err != nil {
		return eris.Wrap(err, "record: write tsv row")
	}
	return nil
}
