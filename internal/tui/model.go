// Package tui is the live terminal dashboard shown while the scheduler runs.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pagershim/internal/agent"
	"pagershim/internal/models"
	"pagershim/internal/shim"
)

// StatsSource reports the scheduler's progress.
type StatsSource interface {
	Stats() agent.Stats
}

// SessionSource exposes the shim session document.
type SessionSource interface {
	Session() shim.Snapshot
}

// TickMsg triggers a refresh.
type TickMsg time.Time

// RefreshInterval is how often the dashboard polls its sources.
var RefreshInterval = 500 * time.Millisecond

type DashboardModel struct {
	stats   StatsSource
	session SessionSource

	iface string
	now   func() time.Time

	current agent.Stats
	aps     []models.AccessPoint
	clients int
	table   table.Model
}

func NewDashboardModel(stats StatsSource, session SessionSource, iface string) DashboardModel {
	columns := []table.Column{
		{Title: "BSSID", Width: 17},
		{Title: "SSID", Width: 24},
		{Title: "CH", Width: 7},
		{Title: "ENC", Width: 5},
		{Title: "RSSI", Width: 5},
		{Title: "CLI", Width: 4},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return DashboardModel{
		stats:   stats,
		session: session,
		iface:   iface,
		now:     time.Now,
		table:   t,
	}
}

func (m DashboardModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
