package reportshttp

import (
	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/reports"
)

// PageVM is the view model of the report workspace page.
type PageVM struct {
	Reports   []ReportOptionVM
	Active    *ActiveReportVM
	CanExport bool
}

// ReportOptionVM is one entry of the report type selector.
type ReportOptionVM struct {
	Key      string
	Title    string
	Selected bool
}

// ActiveReportVM describes the selected report and its current result set.
type ActiveReportVM struct {
	Key     string
	Title   string
	Filters []FilterVM
	Headers []string
	Rows    [][]string
	Loading bool
	Failed  bool
	Empty   bool
}

// FilterVM drives one control of the generated filter form.
type FilterVM struct {
	Name    string
	Label   string
	Choice  bool
	Value   string
	Choices []ChoiceVM
}

// ChoiceVM is one option of an enumerated filter.
type ChoiceVM struct {
	Value    string
	Label    string
	Selected bool
}

func (h *Handler) buildPageVM(ws *reports.Workspace, principal access.Principal) PageVM {
	vm := PageVM{CanExport: h.canExport(principal.Role)}
	d, selected := ws.Active()
	for _, desc := range h.catalog.Descriptors() {
		if !h.permits(principal.Role, desc.Key) {
			continue
		}
		vm.Reports = append(vm.Reports, ReportOptionVM{
			Key:      desc.Key,
			Title:    desc.Title,
			Selected: selected && desc.Key == d.Key,
		})
	}
	if !selected {
		return vm
	}

	snap := ws.Snapshot()
	active := &ActiveReportVM{
		Key:     d.Key,
		Title:   d.Title,
		Headers: d.Headers(),
		Rows:    reports.Render(d, snap.Records),
		Loading: snap.Loading,
		Failed:  snap.Err != nil,
	}
	active.Empty = !active.Loading && len(active.Rows) == 0
	for _, f := range d.Filters {
		fv := FilterVM{
			Name:   f.Name,
			Label:  f.Label,
			Choice: f.Kind == reports.FilterChoice,
			Value:  snap.Filters[f.Name],
		}
		for _, c := range f.Choices {
			fv.Choices = append(fv.Choices, ChoiceVM{Value: c.Value, Label: c.Label, Selected: c.Value == fv.Value})
		}
		active.Filters = append(active.Filters, fv)
	}
	vm.Active = active
	return vm
}
