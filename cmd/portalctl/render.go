package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/workflow"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headingStyle   = lipgloss.NewStyle().Bold(true).Underline(true).MarginTop(1)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	primaryStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	secondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	ghostStyle     = lipgloss.NewStyle().Faint(true)
	cardStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const labelWidth = 26

func buttonStyle(s workflow.Style) lipgloss.Style {
	switch s {
	case workflow.StylePrimary:
		return primaryStyle
	case workflow.StyleSecondary:
		return secondaryStyle
	default:
		return ghostStyle
	}
}

func marker(c workflow.Category) string {
	switch c {
	case workflow.CategoryCompleted:
		return successStyle.Render("✓")
	case workflow.CategoryCurrent:
		return primaryStyle.Render("●")
	default:
		return mutedStyle.Render("○")
	}
}

// renderTimeline draws one line per descriptor; actionable entries show the
// action verb accepted by 'portalctl exec'
func renderTimeline(entries []workflow.StageConfig) string {
	var b strings.Builder
	for _, e := range entries {
		line := marker(e.Category) + " " +
			buttonStyle(e.Style).Width(labelWidth).Render(e.Label) + " " +
			mutedStyle.Render(e.StatusLabel)
		if e.HasAction && e.Action != "" {
			line += "  " + primaryStyle.Render("["+string(e.Action)+"]")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func renderUserCard(u *models.User, viewRole workflow.Role) string {
	lines := []string{
		titleStyle.Render(u.Name),
		mutedStyle.Render(u.Phone),
	}
	if u.City.Valid {
		lines = append(lines, u.City.String)
	}
	lines = append(lines, fmt.Sprintf("Stage: %s", u.Stage))
	if viewRole != "" && viewRole != u.Role {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("Viewing as %s", viewRole)))
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func renderEstimates(estimates []models.Estimate) string {
	var b strings.Builder
	for _, e := range estimates {
		fmt.Fprintf(&b, "%s  %s v%d  %s %.2f  %s\n",
			mutedStyle.Render(e.ID.String()[:8]), e.Title, e.Version, e.Currency, e.Amount, secondaryStyle.Render(string(e.Status)))
	}
	return b.String()
}

func renderDesigns(designs []models.Design) string {
	var b strings.Builder
	for _, d := range designs {
		fmt.Fprintf(&b, "%s  %s v%d  %d file(s)  %s\n",
			mutedStyle.Render(d.ID.String()[:8]), d.Title, d.Version, len(d.FileURLs), secondaryStyle.Render(string(d.Status)))
	}
	return b.String()
}

func renderPayments(payments []models.Payment) string {
	var b strings.Builder
	for _, p := range payments {
		fmt.Fprintf(&b, "%s  %s  %.2f  ref %s  %s\n",
			mutedStyle.Render(p.CreatedAt.Format("2006-01-02")), p.Kind, p.Amount, p.Reference, secondaryStyle.Render(string(p.Status)))
	}
	return b.String()
}

func renderClients(clients []models.ClientSummary) string {
	var b strings.Builder
	for _, c := range clients {
		city := ""
		if c.City.Valid {
			city = c.City.String
		}
		fmt.Fprintf(&b, "%s  %s  %s  %s\n",
			lipgloss.NewStyle().Width(12).Render(c.Phone),
			lipgloss.NewStyle().Width(24).Render(c.Name),
			lipgloss.NewStyle().Width(14).Render(city),
			secondaryStyle.Render(string(c.Stage)))
	}
	return b.String()
}

func renderRecents(recents []models.RecentActivity) string {
	var b strings.Builder
	for _, r := range recents {
		who := r.SubjectPhone
		if r.SubjectName.Valid {
			who = r.SubjectName.String
		}
		fmt.Fprintf(&b, "%s  %s  %s\n",
			mutedStyle.Render(r.CreatedAt.Format("Jan 02 15:04")), r.Action, who)
	}
	return b.String()
}

// renderDashboard draws the getData payload. Sections without data are skipped.
func renderDashboard(data *models.PortalData) string {
	var sections []string

	if data.User != nil {
		sections = append(sections, renderUserCard(data.User, data.ViewRole))
	}
	if len(data.Timeline) > 0 {
		sections = append(sections, headingStyle.Render("Timeline"), renderTimeline(data.Timeline))
	}
	if data.Opportunity != nil && len(data.Phases) > 0 {
		state := data.Opportunity.State()
		sections = append(sections,
			headingStyle.Render(fmt.Sprintf("Phases (%s: %s)", state.Phase, state.Status)),
			renderTimeline(data.Phases))
	}
	if len(data.Estimates) > 0 {
		sections = append(sections, headingStyle.Render("Estimates"), renderEstimates(data.Estimates))
	}
	if len(data.Designs) > 0 {
		sections = append(sections, headingStyle.Render("Designs"), renderDesigns(data.Designs))
	}
	if len(data.Payments) > 0 {
		sections = append(sections, headingStyle.Render("Payments"), renderPayments(data.Payments))
	}
	if len(data.AllClients) > 0 {
		sections = append(sections, headingStyle.Render(fmt.Sprintf("Clients (%d)", len(data.AllClients))), renderClients(data.AllClients))
	}
	if len(data.Recents) > 0 {
		sections = append(sections, headingStyle.Render("Recent activity"), renderRecents(data.Recents))
	}

	if len(sections) == 0 {
		return mutedStyle.Render("Nothing to show yet.") + "\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func renderActionResult(result *models.ActionResult) string {
	line := successStyle.Render("✓ "+string(result.Action)) + " " + result.Phone
	if result.Advanced {
		line += " moved to " + primaryStyle.Render(string(result.Stage))
	} else if result.Stage != "" {
		line += mutedStyle.Render(" (stage " + string(result.Stage) + ")")
	}
	if result.Phase != nil {
		line += mutedStyle.Render(fmt.Sprintf(" [%s: %s]", result.Phase.Phase, result.Phase.Status))
	}
	if result.EntityID != nil {
		line += mutedStyle.Render(" id " + result.EntityID.String())
	}
	return line + "\n"
}
