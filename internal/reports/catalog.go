package reports

import (
	"context"
	"fmt"
	"strings"
)

// Regions served by the backend.
var Regions = []string{"BANGALORE", "CHENNAI", "DELHI", "HYDERABAD", "KOLKATA", "MUMBAI", "PUNE"}

// Catalog is the static set of report descriptors, in menu order.
type Catalog struct {
	order []string
	byKey map[string]Descriptor
}

// NewCatalog builds the built-in reports bound to src.
func NewCatalog(src Source) *Catalog {
	descs := builtinDescriptors()
	for i := range descs {
		descs[i] = bind(src, descs[i])
	}
	return NewCatalogFrom(descs...)
}

// NewCatalogFrom builds a catalog from explicit descriptors. Later duplicates replace earlier ones.
func NewCatalogFrom(descs ...Descriptor) *Catalog {
	c := &Catalog{byKey: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if _, exists := c.byKey[d.Key]; !exists {
			c.order = append(c.order, d.Key)
		}
		c.byKey[d.Key] = d
	}
	return c
}

// Lookup returns the descriptor for key.
func (c *Catalog) Lookup(key string) (Descriptor, error) {
	if c == nil {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownReport, key)
	}
	d, ok := c.byKey[strings.TrimSpace(key)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownReport, key)
	}
	return d, nil
}

// MustLookup panics for keys outside the catalog.
func (c *Catalog) MustLookup(key string) Descriptor {
	d, err := c.Lookup(key)
	if err != nil {
		panic(err)
	}
	return d
}

// Descriptors lists the catalog in declaration order.
func (c *Catalog) Descriptors() []Descriptor {
	if c == nil {
		return nil
	}
	out := make([]Descriptor, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.byKey[key])
	}
	return out
}

// Keys lists report keys in declaration order.
func (c *Catalog) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

func bind(src Source, d Descriptor) Descriptor {
	desc := d
	desc.Fetch = func(ctx context.Context, values FilterValues) ([]Record, error) {
		if src == nil {
			return nil, fmt.Errorf("reports: no source configured for %s", desc.Key)
		}
		return src.FetchReport(ctx, desc.Endpoint, BuildQuery(desc, values))
	}
	return desc
}

func regionChoices() []Choice {
	out := make([]Choice, len(Regions))
	for i, r := range Regions {
		out[i] = Choice{Value: r, Label: strings.ToUpper(r[:1]) + strings.ToLower(r[1:])}
	}
	return out
}

func percent(v any) string {
	s := FormatValue(v)
	if s == "" {
		return ""
	}
	return s + "%"
}

func yesNo(v any) string {
	switch FormatValue(v) {
	case "true", "1", "TRUE", "True":
		return "Yes"
	case "":
		return ""
	default:
		return "No"
	}
}

func builtinDescriptors() []Descriptor {
	return []Descriptor{
		{
			Key:      "licenses",
			Title:    "Licenses",
			Endpoint: "/reports/licenses",
			Filters: []FilterDescriptor{
				{Name: "vendor", Label: "Vendor", Kind: FilterText},
				{Name: "software", Label: "Software", Kind: FilterText},
				{Name: "status", Label: "Status", Kind: FilterChoice, Choices: []Choice{
					{Value: "ACTIVE", Label: "Active"},
					{Value: "EXPIRING", Label: "Expiring"},
					{Value: "EXPIRED", Label: "Expired"},
				}},
			},
			Columns: []ColumnDescriptor{
				{Key: "licenseKey", Header: "License Key"},
				{Key: "softwareName", Header: "Software"},
				{Key: "vendorName", Header: "Vendor"},
				{Key: "region", Header: "Region"},
				{Key: "maxUsage", Header: "Max Usage"},
				{Key: "currentUsage", Header: "Current Usage"},
				{Key: "validTo", Header: "Valid To"},
				{Key: "status", Header: "Status"},
			},
		},
		{
			Key:      "devices",
			Title:    "Devices",
			Endpoint: "/reports/devices",
			Filters: []FilterDescriptor{
				{Name: "region", Label: "Region", Kind: FilterChoice, Choices: regionChoices()},
				{Name: "deviceType", Label: "Device Type", Kind: FilterChoice, Choices: []Choice{
					{Value: "ROUTER", Label: "Router"},
					{Value: "SWITCH", Label: "Switch"},
					{Value: "FIREWALL", Label: "Firewall"},
					{Value: "SERVER", Label: "Server"},
					{Value: "ACCESS_POINT", Label: "Access Point"},
				}},
				{Name: "lifecycle", Label: "Lifecycle", Kind: FilterChoice, Choices: []Choice{
					{Value: "ACTIVE", Label: "Active"},
					{Value: "MAINTENANCE", Label: "Maintenance"},
					{Value: "OBSOLETE", Label: "Obsolete"},
					{Value: "DECOMMISSIONED", Label: "Decommissioned"},
				}},
			},
			Columns: []ColumnDescriptor{
				{Key: "deviceName", Header: "Device"},
				{Key: "deviceType", Header: "Type"},
				{Key: "ipAddress", Header: "IP Address"},
				{Key: "region", Header: "Region"},
				{Key: "lifecycle", Header: "Lifecycle"},
				{Key: "installedLicenses", Header: "Installed Licenses"},
			},
		},
		{
			Key:      "assignments",
			Title:    "Assignments",
			Endpoint: "/reports/assignments",
			Filters: []FilterDescriptor{
				{Name: "region", Label: "Region", Kind: FilterChoice, Choices: regionChoices()},
				{Name: "active", Label: "Active", Kind: FilterChoice, Choices: []Choice{
					{Value: "true", Label: "Active"},
					{Value: "false", Label: "Revoked"},
				}},
			},
			Columns: []ColumnDescriptor{
				{Key: "deviceName", Header: "Device"},
				{Key: "licenseKey", Header: "License Key"},
				{Key: "softwareName", Header: "Software"},
				{Key: "assignedOn", Header: "Assigned On"},
				{Key: "active", Header: "Active", Format: yesNo},
			},
		},
		{
			Key:      "compliance",
			Title:    "Compliance",
			Endpoint: "/reports/compliance",
			Columns: []ColumnDescriptor{
				{Key: "region", Header: "Region"},
				{Key: "totalDevices", Header: "Total Devices"},
				{Key: "devicesWithLicenses", Header: "Licensed Devices"},
				{Key: "devicesWithoutLicenses", Header: "Unlicensed Devices"},
				{Key: "compliancePercentage", Header: "Compliance", Format: percent},
				{Key: "expiringLicenses", Header: "Expiring Licenses"},
			},
		},
		{
			Key:      "alerts",
			Title:    "Alerts",
			Endpoint: "/reports/alerts",
			Filters: []FilterDescriptor{
				{Name: "severity", Label: "Severity", Kind: FilterChoice, Choices: []Choice{
					{Value: "CRITICAL", Label: "Critical"},
					{Value: "HIGH", Label: "High"},
					{Value: "MEDIUM", Label: "Medium"},
					{Value: "LOW", Label: "Low"},
				}},
				{Name: "region", Label: "Region", Kind: FilterChoice, Choices: regionChoices()},
			},
			Columns: []ColumnDescriptor{
				{Key: "alertType", Header: "Type"},
				{Key: "severity", Header: "Severity"},
				{Key: "message", Header: "Message"},
				{Key: "region", Header: "Region"},
				{Key: "createdAt", Header: "Raised At"},
			},
		},
	}
}
