package export

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/licenseops/licenseops/internal/reports"
	"github.com/licenseops/licenseops/report"
)

// Renderer converts HTML into PDF bytes.
type Renderer interface {
	RenderHTML(ctx context.Context, html string, opts report.RenderOptions) ([]byte, error)
}

// PDFExporter lays out report documents and hands them to a Renderer.
type PDFExporter struct {
	Renderer Renderer
}

// NewPDFExporter constructs an exporter.
func NewPDFExporter(renderer Renderer) *PDFExporter {
	return &PDFExporter{Renderer: renderer}
}

// Render produces the PDF export of doc.
func (p *PDFExporter) Render(ctx context.Context, doc reports.Document) ([]byte, error) {
	if p == nil || p.Renderer == nil {
		return nil, fmt.Errorf("pdf exporter not initialised")
	}
	return p.Renderer.RenderHTML(ctx, BuildHTML(doc), report.RenderOptions{Landscape: doc.Landscape})
}

// BuildHTML renders the single-table document markup.
func BuildHTML(doc reports.Document) string {
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset=\"utf-8\">")
	b.WriteString("<title>")
	b.WriteString(html.EscapeString(doc.Title))
	b.WriteString("</title><style>")
	if doc.Landscape {
		b.WriteString("@page{size:A4 landscape;margin:12mm;}")
	}
	b.WriteString("body{font-family:sans-serif;font-size:10px;margin:0;}h1{font-size:18px;margin:0 0 4px;}p.generated{color:#555;margin:0 0 12px;}")
	b.WriteString("table{width:100%;border-collapse:collapse;}thead{display:table-header-group;}tr{page-break-inside:avoid;}")
	b.WriteString("th,td{border:1px solid #ccc;padding:4px 6px;text-align:left;}th{background:#f0f0f0;}")
	b.WriteString("</style></head><body>")
	b.WriteString("<h1>")
	b.WriteString(html.EscapeString(doc.Title))
	b.WriteString("</h1><p class=\"generated\">")
	b.WriteString(html.EscapeString(doc.GeneratedOn))
	b.WriteString("</p><table><thead><tr>")
	for _, header := range doc.Headers {
		b.WriteString("<th>")
		b.WriteString(html.EscapeString(header))
		b.WriteString("</th>")
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range doc.Rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}
