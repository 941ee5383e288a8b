package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/genba/labjackgo/internal/device"
)

var deviceColumns = []string{"#", "FAMILY", "TRANSPORT", "SERIAL", "LOCAL ID", "ADDRESS"}

func deviceRow(i int, id device.Identity) []string {
	addr := id.Address
	if addr == "" {
		addr = "-"
	}
	return []string{
		fmt.Sprintf("%d", i+1),
		id.Family.String(),
		id.Transport.String(),
		fmt.Sprintf("%d", id.Serial),
		fmt.Sprintf("%d", id.LocalID),
		addr,
	}
}

// RenderDevices draws a bordered table of identities.
func RenderDevices(ids []device.Identity) string {
	if len(ids) == 0 {
		return dimStyle.Render("No devices found")
	}
	rows := [][]string{deviceColumns}
	for i, id := range ids {
		rows = append(rows, deviceRow(i, id))
	}
	widths := make([]int, len(deviceColumns))
	for _, r := range rows {
		for c, cell := range r {
			if w := lipgloss.Width(cell); w > widths[c] {
				widths[c] = w
			}
		}
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, titleStyle.Render(fmt.Sprintf("%d device(s)", len(ids))))
	for i, r := range rows {
		cells := make([]string, len(r))
		for c, cell := range r {
			cells[c] = cell + strings.Repeat(" ", widths[c]-lipgloss.Width(cell))
		}
		line := strings.Join(cells, "  ")
		if i == 0 {
			line = headerStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

// DeviceLabel is the one-line description used by the picker.
func DeviceLabel(id device.Identity) string {
	label := fmt.Sprintf("%s serial %d local %d", id.Family, id.Serial, id.LocalID)
	if id.Address != "" {
		label += " @ " + id.Address
	}
	return label
}
