package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"btmonitor/internal/eventlog"
	"btmonitor/internal/mirror"
	"btmonitor/internal/summary"
)

type line struct {
	text  string
	style tcell.Style
}

var (
	plain  = tcell.StyleDefault
	dim    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	header = tcell.StyleDefault.Bold(true)
)

func phaseStyle(p mirror.Phase) tcell.Style {
	switch p {
	case mirror.PhaseConnected:
		return header.Foreground(tcell.ColorGreen)
	case mirror.PhaseConnecting:
		return header.Foreground(tcell.ColorYellow)
	case mirror.PhaseError:
		return header.Foreground(tcell.ColorRed)
	default:
		return header.Foreground(tcell.ColorGray)
	}
}

func levelStyle(level string) tcell.Style {
	switch level {
	case eventlog.LevelError:
		return plain.Foreground(tcell.ColorRed)
	case eventlog.LevelWarning:
		return plain.Foreground(tcell.ColorOrange)
	default:
		return plain
	}
}

// render lays out the screen for a window height rows tall. Monsters and
// players share the space above the event list.
func render(url string, d summary.Dashboard, now time.Time, height int) []line {
	lines := []line{
		{fmt.Sprintf("BT monitor  %s  [%s]", url, d.Phase), phaseStyle(d.Phase)},
		{fmt.Sprintf("monsters %d  players %d  bt trees %d  clients %d  events %d",
			d.Stats.Total, len(d.Players), d.Server.RegisteredBTTrees, d.Server.ConnectedClients, len(d.Events)), dim},
		{byTypeLine(d.Stats), dim},
		{},
	}
	footer := line{"r reconnect   d disconnect   q quit", dim}

	budget := height - len(lines) - 1
	if budget < 0 {
		budget = 0
	}
	eventRows := budget / 3
	entityRows := budget - eventRows

	var entities []line
	entities = append(entities, line{"MONSTERS", header})
	for _, m := range d.Monsters {
		entities = append(entities, line{
			fmt.Sprintf("  %-6s %-18s %-12s %-7s %4d%%  %s",
				m.ID, clip(m.Name, 18), clip(m.Type, 12), m.State, m.HealthPercent, summary.Since(now, m.LastUpdate)),
			plain.Foreground(tcell.GetColor(m.StateColor)),
		})
	}
	entities = append(entities, line{"PLAYERS", header})
	for _, p := range d.Players {
		entities = append(entities, line{
			fmt.Sprintf("  %-6s %-18s %-10s lv %-3d %4d%%", p.ID, clip(p.Name, 18), p.StateLabel, p.Stats.Level, p.HealthPercent),
			plain.Foreground(tcell.GetColor(p.StateColor)),
		})
	}
	if len(entities) > entityRows {
		entities = entities[:entityRows]
	}
	lines = append(lines, entities...)

	if eventRows > 0 {
		lines = append(lines, line{"EVENTS", header})
		// Newest first.
		for i := len(d.Events) - 1; i >= 0 && len(lines) < height-1; i-- {
			e := d.Events[i]
			ts := e.TimestampText()
			if ts == "" {
				ts = e.Received.Format("15:04:05")
			}
			lines = append(lines, line{fmt.Sprintf("  %-20s %-7s %s", clip(ts, 20), e.Level, e.Message), levelStyle(e.Level)})
		}
	}
	return append(lines, footer)
}

func byTypeLine(s summary.MonsterStats) string {
	if len(s.ByType) == 0 {
		return "no monsters"
	}
	parts := make([]string, 0, len(s.ByType))
	for _, c := range s.ByType {
		name := c.Key
		if name == "" {
			name = "?"
		}
		parts = append(parts, fmt.Sprintf("%s %d", name, c.Count))
	}
	return strings.Join(parts, "  ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func draw(screen tcell.Screen, lines []line) {
	screen.Clear()
	w, h := screen.Size()
	for y, l := range lines {
		if y >= h {
			break
		}
		x := 0
		for _, r := range l.text {
			if x >= w {
				break
			}
			screen.SetContent(x, y, r, nil, l.style)
			x++
		}
	}
	screen.Show()
}
