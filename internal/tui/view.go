package tui

import (
	"fmt"
	"strings"

	"github.com/joescharf/ghcrm/internal/dashboard"
	"github.com/joescharf/ghcrm/internal/output"
	"github.com/joescharf/ghcrm/internal/service"
)

func (m Model) View() string {
	if m.screen == screenLogin {
		return m.viewLogin()
	}
	return m.viewDashboard()
}

func (m Model) viewLogin() string {
	mode, other := "Log in", "sign up"
	if m.signup {
		mode, other = "Create account", "log in"
	}

	lines := []string{
		styleTitle.Render("ghcrm") + "  " + styleMuted.Render(mode),
		"",
	}
	for i := 0; i < m.fieldCount(); i++ {
		lines = append(lines, m.fields[i].View())
	}
	lines = append(lines, "")

	switch {
	case m.submitting:
		lines = append(lines, m.spinner.View()+" Signing in...")
	case m.authErr != "":
		lines = append(lines, styleError.Render(m.authErr))
	case m.notice != "":
		lines = append(lines, styleMuted.Render(m.notice))
	}

	lines = append(lines, "", styleMuted.Render(
		fmt.Sprintf("enter: submit  tab: next field  ctrl+t: %s  ctrl+c: quit", other)))
	return strings.Join(lines, "\n")
}

const rowFormat = "%-2s%-6s%-34s%9s%9s%9s  %-16s %s"

func (m Model) viewDashboard() string {
	s := m.state
	header := styleTitle.Render("ghcrm") + "  " + styleMuted.Render("Tracked repositories")
	if s.Refreshing && !s.Loading {
		header += "  " + m.spinner.View()
	}

	var body []string
	switch {
	case s.Loading:
		body = append(body, m.spinner.View()+" Loading projects...")
	case !s.Loaded && s.LoadErr != nil:
		body = append(body,
			styleError.Render("Could not load projects: "+service.Message(s.LoadErr)),
			styleMuted.Render("Press R to retry."))
	case len(s.Projects) == 0:
		body = append(body, styleMuted.Render("No projects tracked yet. Press a to add one."))
	default:
		body = append(body, styleHeader.Render(
			fmt.Sprintf(rowFormat, "", "ID", "Repository", "Stars", "Forks", "Issues", "Created", "")))
		for i, p := range s.Projects {
			marker := ""
			switch {
			case s.IsPending(dashboard.OpUpdate, p.ID):
				marker = m.spinner.View() + " refreshing"
			case s.IsPending(dashboard.OpDelete, p.ID):
				marker = m.spinner.View() + " deleting"
			case s.Failures[dashboard.PendingKey{Op: dashboard.OpUpdate, ID: p.ID}] != nil:
				marker = styleError.Render("refresh failed")
			}
			cursor := ""
			if i == m.cursor {
				cursor = "›"
			}
			row := fmt.Sprintf(rowFormat,
				cursor,
				fmt.Sprint(p.ID),
				truncate(p.FullName(), 32),
				output.Count(p.Stars),
				output.Count(p.Forks),
				output.Count(p.Issues),
				output.Ago(p.CreatedAt()),
				marker,
			)
			if i == m.cursor {
				row = styleSelected.Render(row)
			}
			body = append(body, row)
		}
	}

	if s.Loaded && s.LoadErr != nil {
		body = append(body, "", styleWarning.Render("List may be out of date: "+service.Message(s.LoadErr)))
	}

	parts := []string{header, "", strings.Join(body, "\n")}
	if d := m.viewDialog(); d != "" {
		parts = append(parts, "", d)
	}
	if m.status != "" {
		parts = append(parts, "", m.status)
	}
	parts = append(parts, "", styleMuted.Render(m.helpLine()))
	return strings.Join(parts, "\n")
}

func (m Model) viewDialog() string {
	d := m.state.Dialog
	switch d.Kind {
	case dashboard.DialogAdd:
		lines := []string{"Repository (owner/repo or GitHub URL)", m.addInput.View()}
		if m.state.IsPending(dashboard.OpAdd, 0) {
			lines = append(lines, "", m.spinner.View()+" Adding...")
		} else if d.Err != nil {
			lines = append(lines, "", styleError.Render(service.Message(d.Err)))
		}
		return renderModal(m.width, "Add project", lines...)

	case dashboard.DialogDelete:
		name := ""
		if d.Target != nil {
			name = d.Target.FullName()
		}
		lines := []string{fmt.Sprintf("Stop tracking %s?", styleTitle.Render(name))}
		if d.Target != nil && m.state.IsPending(dashboard.OpDelete, d.Target.ID) {
			lines = append(lines, "", m.spinner.View()+" Deleting...")
		} else if d.Err != nil {
			lines = append(lines, "", styleError.Render(service.Message(d.Err)))
		}
		return renderModal(m.width, "Delete project", lines...)
	}
	return ""
}

func (m Model) helpLine() string {
	switch m.state.Dialog.Kind {
	case dashboard.DialogAdd:
		return "enter: add  esc: cancel"
	case dashboard.DialogDelete:
		return "y/enter: delete  n/esc: cancel"
	}
	return "a: add  d: delete  r: refresh row  R: reload  L: log out  q: quit"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
