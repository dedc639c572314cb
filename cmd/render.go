package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"feedstore/internal/domain/feed"
	"feedstore/internal/ports"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func renderRetrieval(backend string, path string, retrieval ports.Retrieval) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Feed cache"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("backend=%s path=%s", backend, path)))
	b.WriteString("\n\n")

	if !retrieval.IsFound() {
		b.WriteString(dimStyle.Render("(empty)"))
		return b.String()
	}

	snapshot := retrieval.Snapshot
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Snapshot (%d items)", len(snapshot.Items))))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("timestamp: %s\n", snapshot.Timestamp.UTC().Format(time.RFC3339Nano)))
	for i, item := range snapshot.Items {
		b.WriteString(renderItem(i, item))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderItem(index int, item feed.CacheItem) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%2d. %s\n", index+1, item.URL.String()))
	b.WriteString(dimStyle.Render(fmt.Sprintf("    id=%s", item.ID)))
	b.WriteString("\n")
	if item.Description != nil {
		b.WriteString(fmt.Sprintf("    description: %s\n", *item.Description))
	}
	if item.Location != nil {
		b.WriteString(fmt.Sprintf("    location: %s\n", *item.Location))
	}
	return b.String()
}
