package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/config"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Faint(true).Width(10)
	boxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	receiptStyle = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, dev *ble.Device) {
	row := func(label, value string) string {
		return labelStyle.Render(label) + value
	}
	printerLine := "none saved"
	if dev != nil {
		printerLine = fmt.Sprintf("%s (%s)", dev.Name, dev.Address)
	}
	lines := []string{
		titleStyle.Render("struk print agent"),
		row("Listen", cfg.Agent.Listen),
		row("Printer", printerLine),
		row("Transport", cfg.Printer.Transport),
		row("Paper", fmt.Sprintf("%d columns, %s", cfg.Printer.LineWidth, cfg.Printer.Charset)),
		row("Origins", strings.Join(cfg.Agent.AllowedOrigins, ", ")),
		row("Auth", authLabel(cfg.Agent.JWTSecret)),
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}

func authLabel(secret string) string {
	if secret == "" {
		return "off"
	}
	return "bearer token (HS256)"
}

// renderReceipt frames receipt text the way it will come out of the printer.
func renderReceipt(text string) string {
	return receiptStyle.Render(strings.TrimRight(text, "\n"))
}

func renderDevices(devices []ble.Device) string {
	if len(devices) == 0 {
		return "No printers found."
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%d printer(s)", len(devices))))
	for _, d := range devices {
		sb.WriteString("\n  ")
		sb.WriteString(deviceLabel(d))
	}
	return sb.String()
}
