package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pagershim/internal/agent"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	pwndStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)
)

var faces = map[agent.Mood]string{
	agent.MoodNormal:    "(◕‿‿◕)",
	agent.MoodLonely:    "(ب__ب)",
	agent.MoodAngry:     "(-_-')",
	agent.MoodSad:       "(╥☁╥ )",
	agent.MoodBored:     "(-__-)",
	agent.MoodMotivated: "(☼‿‿☼)",
	agent.MoodExcited:   "(ᵔ◡◡ᵔ)",
}

// Face returns the ASCII face for a mood.
func Face(mood agent.Mood) string {
	if f, ok := faces[mood]; ok {
		return f
	}
	return faces[agent.MoodNormal]
}

func (m DashboardModel) View() string {
	title := titleStyle.Render(fmt.Sprintf("pagershim - %s", m.iface))

	st := m.current
	uptime := "-"
	if !st.Started.IsZero() {
		uptime = m.now().Sub(st.Started).Round(time.Second).String()
	}
	status := fmt.Sprintf("CH %s\nEpoch %d\nUp %s\nAPs %d  Clients %d",
		st.Channel, st.Epoch, uptime, len(m.aps), m.clients)
	statusBox := infoStyle.Render(status)

	last := st.LastPwnd
	if last == "" {
		last = "-"
	}
	mood := fmt.Sprintf("%s  %s\nPWND %d\nLast %s",
		Face(st.Mood), st.Mood, st.SessionHandshakes, pwndStyle.Render(last))
	moodBox := infoStyle.Render(mood)

	apBox := infoStyle.Render("Access Points\n" + m.table.View())

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, statusBox, moodBox)
	body := lipgloss.JoinVertical(lipgloss.Left, title, row1, apBox)

	return body + "\nPress q to quit."
}
