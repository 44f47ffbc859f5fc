package report

import (
	"bytes"
	"fmt"
	"html/template"
)

// documentTemplate lays out the final artifact. HTML keeps the
// artifact self-contained and viewable without extra tooling.
var documentTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct": func(ratio float64) float64 { return ratio * 100 },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Sustainability Report - {{.Payload.Period}}</title>
</head>
<body>
<h1>Sustainability Report</h1>
<p><strong>Period:</strong> {{.Payload.Period}}<br>
<strong>Subject:</strong> {{.Payload.SubjectID}}</p>

<h2>Narrative</h2>
<pre style="white-space: pre-wrap">{{.Narrative}}</pre>

<h2>Key Statistics</h2>
<ul>
<li>Total initiatives: {{.Payload.Snapshot.TotalPledges}}</li>
<li>Active: {{.Payload.Snapshot.Active}}</li>
<li>Completed: {{.Payload.Snapshot.Completed}}</li>
<li>Average completion: {{printf "%.1f" .AvgPercent}}%</li>
</ul>

<h2>Initiatives</h2>
<table border="1" cellspacing="0" cellpadding="4">
<tr><th>Title</th><th>Department</th><th>Status</th><th>Completion</th><th>Standing</th></tr>
{{range .Payload.Snapshot.Pledges}}<tr>
<td>{{.Title}}</td><td>{{.Department}}</td><td>{{.Status}}</td><td>{{printf "%.1f" (pct .CompletionRatio)}}%</td><td>{{.Label}}</td>
</tr>
{{end}}</table>

<h2>Recommendations</h2>
<ul>
{{range .Payload.Recommendations}}<li>{{.}}</li>
{{end}}</ul>

<p><em>{{.Payload.Summary}}</em></p>
</body>
</html>
`))

// renderDocument produces the artifact bytes for a generated report.
func renderDocument(p Payload, narrative string) ([]byte, error) {
	var buf bytes.Buffer
	data := struct {
		Payload    Payload
		Narrative  string
		AvgPercent float64
	}{
		Payload:    p,
		Narrative:  narrative,
		AvgPercent: p.Snapshot.AvgCompletion * 100,
	}
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report document: %w", err)
	}
	return buf.Bytes(), nil
}
