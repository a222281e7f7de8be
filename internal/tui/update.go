package tui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/exp/slices"

	"pagershim/internal/models"
)

func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case TickMsg:
		m = m.refresh()
		return m, tickCmd()
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// refresh pulls fresh stats and rebuilds the AP table, strongest first.
func (m DashboardModel) refresh() DashboardModel {
	m.current = m.stats.Stats()

	aps := m.session.Session().WiFi.APs
	slices.SortStableFunc(aps, func(a, b models.AccessPoint) int {
		return b.RSSI - a.RSSI
	})
	m.aps = aps

	m.clients = 0
	rows := make([]table.Row, len(aps))
	for i, ap := range aps {
		m.clients += len(ap.Clients)
		rows[i] = table.Row{
			ap.MAC,
			ap.DisplayName(),
			models.FrequencyLabel(ap.Channel, ap.Frequency),
			string(ap.Encryption),
			strconv.Itoa(ap.RSSI),
			strconv.Itoa(len(ap.Clients)),
		}
	}
	m.table.SetRows(rows)
	return m
}
