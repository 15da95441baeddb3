package generator

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/charmbracelet/glamour"

	"github.com/bench-history/tracker/types"
)

var funcs = template.FuncMap{
	"commit": commitLink,
	"value":  formatValue,
	"ratio":  formatRatio,
	"num":    formatNumber,
	"fixed":  formatFixed,
	"deref":  func(f *float64) float64 { return *f },
	"code":   func(s string) string { return "`" + s + "`" },
}

var alertTempl = template.Must(template.New("alert").Funcs(funcs).Parse(
	`# :warning: **Performance Alert** :warning:

Possible performance regression was detected for benchmark **'{{.Group}}'**.
Benchmark result of this commit is worse than the previous benchmark result exceeding threshold ` + "`{{num .Threshold}}`" + `.

| Benchmark suite | Current: {{commit .RepoURL .CommitID}} | Previous: {{commit .RepoURL .PrevCommit}} | Ratio |
|-|-|-|-|
{{- range .Alerts}}
| {{code .Bench}} | {{value .Current .Unit ""}} | {{value .Previous .Unit ""}} | {{code (fixed .Ratio)}} |
{{- end}}
{{if .ShouldFail}}
Workflow failed because a ratio exceeded the fail threshold ` + "`{{num .FailThreshold}}`" + `.
{{end}}`))

var comparisonTempl = template.Must(template.New("comparison").Funcs(funcs).Parse(
	`# {{.Group}}

<details>

| Benchmark suite | Current: {{commit .RepoURL .CommitID}} | Previous: {{commit .RepoURL .PrevCommit}} | Ratio |
|-|-|-|-|
{{- range .Benches}}
| {{code .Name}} | {{value .Current .Unit .Range}} | {{if .Previous}}{{value (deref .Previous) .Unit .PreviousRange}}{{end}} | {{ratio .Ratio}} |
{{- end}}

</details>
`))

type alertView struct {
	Group         string
	RepoURL       string
	CommitID      string
	PrevCommit    string
	Threshold     float64
	FailThreshold float64
	ShouldFail    bool
	Alerts        []types.Alert
}

type comparisonView struct {
	Group      string
	RepoURL    string
	CommitID   string
	PrevCommit string
	Benches    []types.BenchComparison
}

// AlertMarkdown renders the alert comment for a report. It returns "" when
// nothing fired.
func AlertMarkdown(report *types.AlertReport, repoURL string) (string, error) {
	if !report.HasAlerts() {
		return "", nil
	}
	cmp := report.Comparison
	view := alertView{
		Group:         cmp.Group,
		RepoURL:       repoURL,
		CommitID:      cmp.Current.Commit.ID,
		Threshold:     report.Threshold,
		FailThreshold: report.FailThreshold,
		ShouldFail:    report.ShouldFail,
		Alerts:        report.Alerts,
	}
	if cmp.Previous != nil {
		view.PrevCommit = cmp.Previous.Commit.ID
	}

	var buf bytes.Buffer
	if err := alertTempl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render alert: %w", err)
	}
	return buf.String(), nil
}

// ComparisonMarkdown renders every bench of a comparison as a collapsible table
func ComparisonMarkdown(cmp *types.Comparison, repoURL string) (string, error) {
	view := comparisonView{
		Group:   cmp.Group,
		RepoURL: repoURL,
		Benches: cmp.Benches,
	}
	if cmp.Current != nil {
		view.CommitID = cmp.Current.Commit.ID
	}
	if cmp.Previous != nil {
		view.PrevCommit = cmp.Previous.Commit.ID
	}

	var buf bytes.Buffer
	if err := comparisonTempl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render comparison: %w", err)
	}
	return buf.String(), nil
}

// Terminal renders markdown for display in a terminal
func Terminal(markdown string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(markdown)
}

func commitLink(repoURL, id string) string {
	if id == "" {
		return "none"
	}
	short := types.Commit{ID: id}.ShortID()
	if repoURL == "" {
		return short
	}
	return fmt.Sprintf("[%s](%s/commit/%s)", short, strings.TrimSuffix(repoURL, "/"), id)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatValue(v float64, unit, rng string) string {
	s := "`" + formatNumber(v) + "` " + unit
	if rng != "" {
		s += " (`" + rng + "`)"
	}
	return s
}

func formatRatio(r *float64) string {
	if r == nil {
		return "`-`"
	}
	return "`" + formatFixed(*r) + "`"
}

func formatFixed(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
