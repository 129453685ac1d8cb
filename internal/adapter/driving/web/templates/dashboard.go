// Package templates holds the templ components rendered by the status
// dashboard's driving adapter.
package templates

import (
	"bytes"
	"context"
	"html"
	"io"
	"strconv"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/gitmirror/internal/adapter/driving/web/viewmodel"
)

// Dashboard renders the mirror's ingestion status: whether a full scan is
// in progress, when the last one started, queue depth, and each owner's
// event-scan countdown.
func Dashboard(data vm.DashboardViewModel) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var buf bytes.Buffer

		buf.WriteString("<!doctype html><html lang=\"en\"><head><meta charset=\"utf-8\">")
		buf.WriteString("<title>gitmirror status</title>")
		buf.WriteString("<link rel=\"stylesheet\" href=\"/static/style.css\"></head><body>")
		buf.WriteString("<h1>Mirror status</h1>")

		buf.WriteString("<section id=\"scan-status\">")
		buf.WriteString("<p>Full scan in progress: <strong>")
		buf.WriteString(boolLabel(data.FullScanInProgress))
		buf.WriteString("</strong></p>")
		buf.WriteString("<p>Last full scan: <strong>")
		buf.WriteString(html.EscapeString(data.LastFullScan))
		buf.WriteString("</strong></p>")
		buf.WriteString("<p>Queue: <strong>")
		buf.WriteString(strconv.Itoa(data.QueueAvailableWork))
		buf.WriteString("</strong> available, <strong>")
		buf.WriteString(strconv.Itoa(data.QueueActiveWork))
		buf.WriteString("</strong> active</p>")
		buf.WriteString("</section>")

		buf.WriteString("<table id=\"owners\"><thead><tr><th>Owner</th><th>State</th><th>Next event scan</th></tr></thead><tbody>")
		for _, o := range data.Owners {
			buf.WriteString("<tr><td>")
			buf.WriteString(html.EscapeString(o.Name))
			buf.WriteString("</td><td>")
			buf.WriteString(html.EscapeString(o.State))
			buf.WriteString("</td><td>")
			buf.WriteString(html.EscapeString(o.NextEventScan))
			buf.WriteString("</td></tr>")
		}
		buf.WriteString("</tbody></table>")

		buf.WriteString("</body></html>")

		_, err := w.Write(buf.Bytes())
		return err
	})
}

func boolLabel(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
