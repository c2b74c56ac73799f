package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownReport indicates a report key outside the catalog.
	ErrUnknownReport = errors.New("reports: unknown report type")
	// ErrNoReportSelected is returned when filters are applied before a report is chosen.
	ErrNoReportSelected = errors.New("reports: no report selected")
	// ErrEmptyReport blocks document export of an empty result set.
	ErrEmptyReport = errors.New("reports: nothing to export")
	// ErrInvalidFilter is returned for undeclared filter names and unknown choice values.
	ErrInvalidFilter = errors.New("reports: invalid filter")
)

// Record is one row of report data as returned by the backend.
type Record map[string]any

// FilterValues maps filter names to raw form values.
type FilterValues map[string]string

// Clone returns an independent copy.
func (v FilterValues) Clone() FilterValues {
	out := make(FilterValues, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// FilterKind distinguishes free text filters from enumerated ones.
type FilterKind string

const (
	FilterText   FilterKind = "text"
	FilterChoice FilterKind = "choice"
)

// Choice is a value/label pair offered by an enumerated filter.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FilterDescriptor drives one control of the filter form.
type FilterDescriptor struct {
	Name    string     `json:"name"`
	Label   string     `json:"label"`
	Kind    FilterKind `json:"kind"`
	Choices []Choice   `json:"choices,omitempty"`
}

// Accepts reports whether value is valid for the filter. Text filters accept anything.
func (f FilterDescriptor) Accepts(value string) bool {
	if f.Kind != FilterChoice {
		return true
	}
	for _, c := range f.Choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

// ColumnDescriptor binds a record field to a table column. Value computes the datum and
// Format maps it for display; both default to the raw field.
type ColumnDescriptor struct {
	Key    string
	Header string
	Value  func(Record) any
	Format func(any) string
}

// FetchFunc loads the records of a report for the given filter values.
type FetchFunc func(ctx context.Context, values FilterValues) ([]Record, error)

// Descriptor is the static configuration of one report type.
type Descriptor struct {
	Key      string
	Title    string
	Endpoint string
	Filters  []FilterDescriptor
	Columns  []ColumnDescriptor
	Fetch    FetchFunc
}

// Headers returns the column headers in declaration order.
func (d Descriptor) Headers() []string {
	headers := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		headers[i] = col.Header
	}
	return headers
}

// Filter looks up a filter by name.
func (d Descriptor) Filter(name string) (FilterDescriptor, bool) {
	for _, f := range d.Filters {
		if f.Name == name {
			return f, true
		}
	}
	return FilterDescriptor{}, false
}

// Filename returns the export file name for the given extension.
func (d Descriptor) Filename(ext string) string {
	return d.Key + "." + strings.TrimPrefix(ext, ".")
}

// Source performs the HTTP call behind report fetches.
type Source interface {
	FetchReport(ctx context.Context, endpoint string, query url.Values) ([]Record, error)
}

// Notification is a transient message surfaced to the user.
type Notification struct {
	Kind    string
	Message string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// DecodeRecords reads a flat JSON array of records. Numbers keep their textual form.
func DecodeRecords(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var records []Record
	if err := dec.Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("reports: decode records: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// FormatValue renders a scalar for tables and exports.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format("02 Jan 2006")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
