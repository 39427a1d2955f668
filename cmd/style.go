package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/audiolibrelab/audiorec/internal/recording"
)

const (
	colorPrimary = "#2563EB"
	colorGreen   = "#16A34A"
	colorOrange  = "#EA580C"
	colorYellow  = "#CA8A04"
	colorMuted   = "#64748B"
	colorBorder  = "#334155"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8FAFC")).
			Background(lipgloss.Color(colorPrimary)).
			Padding(0, 1)

	recordingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorOrange)).
			Bold(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorYellow))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorGreen))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

const meterWidth = 30

// renderMeter draws an input level bar; -60 dB and below is empty
func renderMeter(levelDB float64) string {
	fraction := (levelDB + 60) / 60
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * meterWidth)

	var b strings.Builder
	for i := 0; i < meterWidth; i++ {
		switch {
		case i >= filled:
			b.WriteString(" ")
		case fraction > 0.9:
			b.WriteString("█")
		case fraction > 0.7:
			b.WriteString("▆")
		default:
			b.WriteString("▄")
		}
	}
	return "[" + b.String() + "]"
}

// renderTimeline draws playback progress
func renderTimeline(position, duration int64, width int) string {
	filled := 0
	if duration > 0 {
		filled = int(float64(position) / float64(duration) * float64(width))
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// recordingsTable renders recordings as a bordered table
func recordingsTable(recs []recording.Recording) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(colorBorder))).
		Headers("ID", "TITLE", "DURATION", "SIZE", "CREATED", "CATEGORY", "★").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, rec := range recs {
		category := ""
		if rec.Category != nil {
			category = *rec.Category
		}
		favorite := ""
		if rec.IsFavorite {
			favorite = "★"
		}
		t.Row(
			rec.ID,
			rec.Title,
			recording.FormatDuration(rec.DurationMillis),
			recording.FormatBytes(rec.Size),
			formatCreated(rec),
			category,
			favorite,
		)
	}
	return t.Render()
}

func formatCreated(rec recording.Recording) string {
	created := rec.CreatedTime()
	if created.IsZero() {
		return rec.CreatedAt
	}
	return created.Local().Format("2006-01-02 15:04")
}

func printSummary(count int) {
	switch count {
	case 0:
		fmt.Println(mutedStyle.Render("No recordings"))
	case 1:
		fmt.Println(mutedStyle.Render("1 recording"))
	default:
		fmt.Println(mutedStyle.Render(fmt.Sprintf("%d recordings", count)))
	}
}
