// Package display renders check and job analysis as terminal tables and
// panels, or as JSON.
package display

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/newhook/cifail/internal/buildkite"
	"github.com/newhook/cifail/internal/checks"
)

const (
	defaultWidth     = 100
	minWidth         = 40
	descriptionWidth = 50
)

// Printer writes human-readable output to one writer.
type Printer struct {
	out   io.Writer
	width int
	s     styles
}

// NewPrinter creates a printer for out. Colors are used only when out is a
// terminal; the panel width follows the terminal width.
func NewPrinter(out io.Writer) *Printer {
	width := defaultWidth
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w >= minWidth {
			width = w
		}
	}
	return &Printer{
		out:   out,
		width: width,
		s:     newStyles(lipgloss.NewRenderer(out)),
	}
}

// SetWidth overrides the output width.
func (p *Printer) SetWidth(width int) {
	if width < minWidth {
		width = minWidth
	}
	p.width = width
}

func (p *Printer) println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

// Message prints a line in the given tone: "success", "warning", "failure"
// or "info".
func (p *Printer) Message(tone, text string) {
	style := p.s.cell.UnsetPadding()
	switch tone {
	case "success":
		style = p.s.success
	case "warning":
		style = p.s.warning
	case "failure":
		style = p.s.failure
	case "info":
		style = p.s.info
	}
	p.println(style.Render(text))
}

func (p *Printer) panel(title, body string, color lipgloss.Color) {
	inner := p.width - 4
	wrapped := wordwrap.String(body, inner)
	p.println(p.s.title.Foreground(color).Render(title))
	p.println(p.s.panel.BorderForeground(color).Width(p.width - 2).Render(wrapped))
}

// linesPanel renders one output line per input line, truncating instead of
// wrapping so line-number prefixes stay aligned.
func (p *Printer) linesPanel(title string, lines []string, color lipgloss.Color) {
	inner := p.width - 4
	clipped := make([]string, len(lines))
	for i, l := range lines {
		clipped[i] = truncate.StringWithTail(l, uint(inner), "...")
	}
	p.println(p.s.title.Foreground(color).Render(title))
	p.println(p.s.panel.BorderForeground(color).Width(p.width - 2).Render(strings.Join(clipped, "\n")))
}

func (p *Printer) table(headers []string, rows [][]string, styleFor func(col int) lipgloss.Style) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.s.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.s.header
			}
			if styleFor != nil {
				return styleFor(col)
			}
			return p.s.cell
		})
	return t.String()
}

// Checks renders the PR check summary, the failing and in-progress tables,
// any resolved failure details and next-step suggestions.
func (p *Printer) Checks(report ChecksReport) {
	p.println(p.s.info.Render(fmt.Sprintf("📝 PR #%d - %s", report.PR.Number, report.PR.Title)))
	p.println(p.s.link.Render("🔗 " + report.PR.URL))
	p.println()

	p.statusTable(report.Result)
	p.inProgressTable(report.Result.InProgress)
	p.failingTable(report.Result.Failures)

	for _, d := range report.Details {
		p.println()
		p.FailureDetail(d)
	}

	p.suggestions(report)
}

func (p *Printer) statusTable(r checks.AnalysisResult) {
	rows := [][]string{
		{"Total Checks", strconv.Itoa(r.Total), ""},
		{"Buildkite Checks", strconv.Itoa(r.Buildkite), ""},
	}
	if r.Running > 0 {
		rows = append(rows, []string{"Running", strconv.Itoa(r.Running), "🔄 In progress"})
	}
	if r.Pending > 0 {
		rows = append(rows, []string{"Pending", strconv.Itoa(r.Pending), "⏳ Waiting"})
	}
	rows = append(rows,
		[]string{"Passed", strconv.Itoa(r.Passed), "✅ Success"},
		[]string{"Failed", strconv.Itoa(r.Failed), failedStatus(r.Failed)},
	)
	if r.Other > 0 {
		rows = append(rows, []string{"Other", strconv.Itoa(r.Other), "⚪ " + otherBreakdown(r.OtherStates)})
	}
	if rate := r.SuccessRate(); rate >= 0 {
		rows = append(rows, []string{"Success Rate", fmt.Sprintf("%.1f%%", rate), ""})
	}

	p.println(p.s.title.Render("CI Checks Status"))
	p.println(p.table([]string{"Metric", "Count", "Status"}, rows, nil))
}

func failedStatus(n int) string {
	if n > 0 {
		return "❌ Failed"
	}
	return "✅ None"
}

func otherBreakdown(states map[string]int) string {
	if len(states) == 0 {
		return "Neutral/Other"
	}
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %d", strings.ToLower(k), states[k])
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) inProgressTable(inProgress []checks.CheckStatus) {
	if len(inProgress) == 0 {
		return
	}
	rows := make([][]string, len(inProgress))
	for i, c := range inProgress {
		pipeline, build := buildColumns(c.Build)
		rows[i] = []string{strconv.Itoa(i + 1), c.Name, pipeline, build,
			truncate.StringWithTail(c.Description, descriptionWidth, "..."), c.Link}
	}
	p.println()
	p.println(p.s.warning.Render("🔄 Buildkite In Progress:"))
	p.println(p.table([]string{"#", "Check", "Pipeline", "Build", "Description", "Link"}, rows, p.columnStyle))
}

func (p *Printer) failingTable(failures []checks.FailureDetail) {
	if len(failures) == 0 {
		return
	}
	rows := make([][]string, len(failures))
	for i, f := range failures {
		pipeline, build := buildColumns(f.Build)
		rows[i] = []string{strconv.Itoa(f.Index), f.CheckName, pipeline, build,
			truncate.StringWithTail(f.Description, descriptionWidth, "..."), f.Link}
	}
	p.println()
	p.println(p.s.failure.Render("💥 Failing Checks:"))
	p.println(p.table([]string{"#", "Check", "Pipeline", "Build", "Description", "Link"}, rows, p.columnStyle))
}

func (p *Printer) columnStyle(col int) lipgloss.Style {
	switch col {
	case 0:
		return p.s.dim.Padding(0, 1)
	case 2:
		return p.s.info.Padding(0, 1)
	case 3:
		return p.s.warning.Padding(0, 1)
	case 5:
		return p.s.link.Padding(0, 1)
	}
	return p.s.cell
}

func buildColumns(ref *buildkite.BuildRef) (string, string) {
	if ref == nil {
		return "-", "-"
	}
	return ref.Pipeline, ref.Number
}

// FailureDetail renders one resolved failure.
func (p *Printer) FailureDetail(d checks.FailureDetail) {
	p.println(p.s.failure.Bold(true).Render(fmt.Sprintf("💥 Failure #%d: %s", d.Index, d.CheckName)))

	switch d.Status {
	case checks.DetailTrigger:
		p.panel("Main Pipeline Build (Contains Trigger Jobs)",
			fmt.Sprintf("🔗 Build Link: %s\n📝 Description: %s", d.Link, d.Description), colorBlue)
		p.panel("About Trigger Jobs",
			"💡 This build contains trigger jobs that spawn the failing builds shown above.\n"+
				"The actual failures are in the individual triggered pipeline builds.\n"+
				"Use '"+logsCommand(d.Build)+"' to see trigger job details.", colorOrange)
		return
	case checks.DetailNotBuildkite:
		p.panel("Check Information",
			fmt.Sprintf("🔗 Link: %s\n📝 Description: %s\n\nThis check does not run on Buildkite; open the link for its logs.",
				d.Link, d.Description), colorBlue)
		return
	case checks.DetailPending:
		p.panel("Check Information", fmt.Sprintf("🔗 Link: %s\n📝 Description: %s", d.Link, d.Description), colorBlue)
		return
	}

	if len(d.Jobs) == 0 {
		body := fmt.Sprintf("🔗 Build Link: %s\n📝 Description: %s", d.Link, d.Description)
		if d.Reason != "" {
			body += "\n❌ " + d.Reason
		}
		p.panel("Build Information", body, colorBlue)
		p.panel("Getting Detailed Logs", "💡 Use '"+logsCommand(d.Build)+"' for detailed logs.", colorOrange)
		return
	}

	for i, j := range d.Jobs {
		if i > 0 {
			p.println()
		}
		p.JobDetail(j, i+1)
	}
}

// JobDetail renders the analysis of one job with a pro tip for full logs.
func (p *Printer) JobDetail(j checks.JobFailure, n int) {
	a := j.Analysis
	if a.Command != "" {
		p.panel("🔧 CI Command (Failed)", a.Command, colorOrange)
	}
	if a.Error != "" {
		p.panel("❌ Error Message", a.Error, colorRed)
	}
	if len(a.Context) > 0 {
		p.linesPanel("📝 Error Context", a.Context, colorRed)
	}
	if len(a.FailedTests) > 0 {
		p.linesPanel("🧪 Failed Tests", a.FailedTests, colorRed)
	}

	info := "🆔 Job ID: " + j.JobID
	switch {
	case !j.Analyzed && j.Reason != "":
		info += "\n❌ " + j.Reason
	case a.Command == "" && a.Error == "":
		info += "\n❌ Could not extract detailed failure information"
	}
	if j.WebURL != "" {
		info += "\n🔗 " + j.WebURL
	}
	p.panel(fmt.Sprintf("Job %d: %s", n, j.JobName), info, colorBlue)

	if j.BuildID != "" && j.PipelineSlug != "" {
		p.panel("Pro Tip",
			fmt.Sprintf("💡 For complete logs: cifail logs %s --pipeline-slug %s", j.BuildID, j.PipelineSlug), colorGreen)
	}
}

// Jobs renders the failed jobs of a build for the logs command.
func (p *Printer) Jobs(report JobsReport) {
	if len(report.Jobs) == 0 {
		p.Message("success", "✅ No failed jobs found")
		return
	}
	p.Message("failure", fmt.Sprintf("💥 Found %d failed jobs:", len(report.Jobs)))
	for i, j := range report.Jobs {
		p.println()
		if report.Detailed {
			p.JobDetail(j, i+1)
			continue
		}
		info := "🆔 Job ID: " + j.JobID + "\n\n💡 Use --detailed to get failing commands and errors"
		p.panel(fmt.Sprintf("Job %d: %s", i+1, j.JobName), info, colorRed)
	}
	p.println()
	p.panel("Pro Tip",
		fmt.Sprintf("💡 Full logs command: bk api /pipelines/%s/builds/%s/jobs/<job-id>/log",
			report.PipelineSlug, report.BuildID), colorBlue)
}

func (p *Printer) suggestions(report ChecksReport) {
	r := report.Result
	switch {
	case len(r.Failures) == 0 && len(r.InProgress) == 0:
		p.println()
		p.Message("success", "✅ No failing or in-progress Buildkite checks found")
	case len(r.Failures) == 0:
		p.println()
		p.Message("success", "✅ No failing checks found")
	case len(r.InProgress) == 0:
		p.println()
		p.Message("warning", "⏸️ No in-progress Buildkite checks found")
	}

	if len(r.Failures) == 0 || report.Detailed {
		return
	}

	lines := []string{"💡 Next steps:"}
	if len(r.Failures) == 1 {
		lines = append(lines, "  • cifail checks --detail 1 - Show details for specific failures")
	} else {
		lines = append(lines, "  • cifail checks --detail 1,2 - Show details for specific failures")
	}
	lines = append(lines, "  • cifail checks --detailed - Show all failure details inline")
	shown := 0
	for _, f := range r.Failures {
		if f.Build == nil || f.Build.Pipeline == "" || shown == 2 {
			continue
		}
		lines = append(lines, "  • "+logsCommand(f.Build)+" - Get complete build logs")
		shown++
	}
	lines = append(lines,
		"",
		"💡 Tips:",
		"  • If failure details are incomplete, use 'cifail logs' for complete build logs",
		"  • Trigger jobs spawn sub-pipelines; the real errors are in the triggered jobs",
	)
	p.println()
	p.panel("Quick Actions", strings.Join(lines, "\n"), colorBlue)
}

func logsCommand(ref *buildkite.BuildRef) string {
	if ref == nil {
		return "cifail logs <build-id> --pipeline-slug <pipeline>"
	}
	return fmt.Sprintf("cifail logs %s --pipeline-slug %s", ref.Number, ref.Pipeline)
}
