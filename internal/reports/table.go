package reports

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DocumentTimeLayout formats the generation timestamp of document exports.
const DocumentTimeLayout = "02 Jan 2006 15:04:05"

// Cell computes the value of col for rec. Missing fields yield nil.
func Cell(col ColumnDescriptor, rec Record) (value any) {
	if col.Value == nil {
		return rec[col.Key]
	}
	defer func() {
		if recover() != nil {
			value = rec[col.Key]
		}
	}()
	return col.Value(rec)
}

// CellText renders the display text of col for rec.
func CellText(col ColumnDescriptor, rec Record) (text string) {
	value := Cell(col, rec)
	if col.Format == nil {
		return FormatValue(value)
	}
	defer func() {
		if recover() != nil {
			text = FormatValue(value)
		}
	}()
	return col.Format(value)
}

// Render produces one row per record and one cell per column, in declaration order.
func Render(d Descriptor, records []Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(d.Columns))
		for i, col := range d.Columns {
			row[i] = CellText(col, rec)
		}
		rows = append(rows, row)
	}
	return rows
}

// Delimited returns the header row followed by the rendered rows.
func Delimited(d Descriptor, records []Record) [][]string {
	out := make([][]string, 0, len(records)+1)
	out = append(out, d.Headers())
	return append(out, Render(d, records)...)
}

// Document is a paginated, landscape tabular export.
type Document struct {
	Title       string
	GeneratedAt time.Time
	GeneratedOn string
	Headers     []string
	Rows        [][]string
	Landscape   bool
}

// BuildDocument lays out the document export of a report.
func BuildDocument(d Descriptor, records []Record, now time.Time) Document {
	return Document{
		Title:       DocumentTitle(d),
		GeneratedAt: now,
		GeneratedOn: "Generated on: " + now.Format(DocumentTimeLayout),
		Headers:     d.Headers(),
		Rows:        Render(d, records),
		Landscape:   true,
	}
}

// DocumentTitle returns "<TITLE> REPORT".
func DocumentTitle(d Descriptor) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(d.Title)) + " REPORT"
}

// BuildQuery keeps the declared, non-empty filter values of d.
func BuildQuery(d Descriptor, values FilterValues) url.Values {
	query := url.Values{}
	for _, f := range d.Filters {
		v := strings.TrimSpace(values[f.Name])
		if v == "" {
			continue
		}
		query.Set(f.Name, v)
	}
	return query
}

// SanitizeFilters drops undeclared names, blank values and unknown choices.
func SanitizeFilters(d Descriptor, values FilterValues) FilterValues {
	out := FilterValues{}
	for _, f := range d.Filters {
		v := strings.TrimSpace(values[f.Name])
		if v == "" || !f.Accepts(v) {
			continue
		}
		out[f.Name] = v
	}
	return out
}

// ValidateFilters rejects names d does not declare and choice values outside the declared
// choices. Blank values pass. Typed input goes through here; form controls use SanitizeFilters.
func ValidateFilters(d Descriptor, values FilterValues) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		f, ok := d.Filter(name)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s has no filter %q", ErrInvalidFilter, d.Key, name))
			continue
		}
		v := strings.TrimSpace(values[name])
		if v == "" || f.Accepts(v) {
			continue
		}
		allowed := make([]string, len(f.Choices))
		for i, c := range f.Choices {
			allowed[i] = c.Value
		}
		errs = append(errs, fmt.Errorf("%w: %s=%q, want one of %s", ErrInvalidFilter, name, v, strings.Join(allowed, ", ")))
	}
	return errors.Join(errs...)
}
