package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/trybotster/botster-orchestrator/internal/adminapi"
	"github.com/trybotster/botster-orchestrator/internal/registry"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	attentionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("203"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func renderSessionTable(views []adminapi.SessionView) string {
	if len(views) == 0 {
		return dimStyle.Render("no open sessions") + "\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-12s  %-8s  %-6s  %s\n",
		headerStyle.Render("ID"), headerStyle.Render("STATUS"), headerStyle.Render("ATTN"), headerStyle.Render("DIR"))
	for _, v := range views {
		attn := " "
		if v.NeedsAttention {
			attn = attentionStyle.Render("*")
		}
		fmt.Fprintf(&b, "%-12s  %-8s  %-6s  %s\n", v.ID, v.Status, attn, v.WorkingDir)
	}
	return b.String()
}

func renderProviderTable(views []adminapi.ProviderView) string {
	if len(views) == 0 {
		return dimStyle.Render("no providers registered") + "\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-20s  %-8s  %-10s  %s\n",
		headerStyle.Render("ID"), headerStyle.Render("VERSION"), headerStyle.Render("STATUS"), headerStyle.Render("CAPABILITIES"))
	for _, v := range views {
		fmt.Fprintf(&b, "%-20s  %-8s  %-10s  %s\n", v.ID, v.Version, v.Status, strings.Join(v.Capabilities, ","))
	}
	return b.String()
}

func renderCapabilityTable(caps []registry.Capability) string {
	if len(caps) == 0 {
		return dimStyle.Render("no capabilities activated for this session") + "\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-24s  %-20s  %s\n",
		headerStyle.Render("NAME"), headerStyle.Render("KIND"), headerStyle.Render("DESCRIPTION"))
	for _, c := range caps {
		fmt.Fprintf(&b, "%-24s  %-20s  %s\n", c.Name, c.Kind, c.Description)
	}
	return b.String()
}

func renderStatus(status adminapi.StatusResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %d\n", headerStyle.Render("sessions:"), status.SessionCount)
	fmt.Fprintf(&b, "%s %d\n", headerStyle.Render("providers:"), status.ProviderCount)
	return b.String()
}
