package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Catppuccin Mocha subset.
const (
	colorRed      lipgloss.Color = "#f38ba8"
	colorPeach    lipgloss.Color = "#fab387"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorPink     lipgloss.Color = "#f5c2e7"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorText     lipgloss.Color = "#cdd6f4"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorTeal)
	labelStyle   = lipgloss.NewStyle().Foreground(colorOverlay1)
	valueStyle   = lipgloss.NewStyle().Foreground(colorText)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	warnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	amountOut    = lipgloss.NewStyle().Foreground(colorPeach)
	amountIn     = lipgloss.NewStyle().Foreground(colorGreen)
)

func success(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func warn(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, warnStyle.Render("! "+fmt.Sprintf(format, args...)))
}

// kv prints aligned label/value pairs. pairs alternates label, value.
func kv(w io.Writer, pairs ...string) {
	width := 0
	for i := 0; i < len(pairs); i += 2 {
		width = max(width, lipgloss.Width(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(padRight(pairs[i]+":", width+1)), valueStyle.Render(pairs[i+1]))
	}
}

// table prints rows under a header with columns padded to their widest cell.
func table(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i := range widths {
			if i < len(r) {
				widths[i] = max(widths[i], lipgloss.Width(r[i]))
			}
		}
	}
	line := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = padRight(cell, widths[i])
		}
		fmt.Fprintln(w, style.Render(strings.TrimRight(strings.Join(parts, "  "), " ")))
	}
	line(header, headerStyle)
	for _, r := range rows {
		line(r, valueStyle)
	}
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func signed(minor int64, formatted string) string {
	if minor < 0 {
		return amountOut.Render(formatted)
	}
	return amountIn.Render(formatted)
}
