package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/lc/rbl/internal/dnsbl"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	colors := make([]tablewriter.Colors, len(header))
	for i := range colors {
		colors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor}
	}
	table.SetHeaderColor(colors...)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	return table
}

// renderReports prints one table row per hit, or per check when all is set.
func renderReports(w io.Writer, reports []report, all bool) {
	table := newTable(w, "Address", "List", "Type", "Data", "Result", "Status")
	rows := 0

	for _, r := range reports {
		if r.Error != "" {
			table.Append([]string{r.Address, "", "", "", color.RedString("error"), r.Error})
			rows++
			continue
		}
		for _, h := range r.Hits {
			table.Append(hitRow(r.Address, h, all))
			rows++
		}
	}

	if rows > 0 {
		table.Render()
		fmt.Fprintln(w)
	}

	for _, r := range reports {
		switch {
		case r.Error != "":
			color.New(color.FgHiRed).Fprintf(w, "✗ %s: %s\n", r.Address, r.Error)
		case r.Listed:
			color.New(color.FgHiRed, color.Bold).Fprintf(w, "✗ %s is listed on %d list(s)", r.Address, countListed(r.Hits))
			fmt.Fprintf(w, " (%s)\n", r.Duration.Round(time.Millisecond))
		default:
			color.New(color.FgGreen, color.Bold).Fprintf(w, "✓ %s is not listed", r.Address)
			fmt.Fprintf(w, " (%s)\n", r.Duration.Round(time.Millisecond))
		}
	}
}

func hitRow(addr string, h dnsbl.Hit, all bool) []string {
	result := color.HiRedString(h.ActualHit)
	if !h.Listed {
		result = color.GreenString("-")
	}
	status := h.Status
	if all && status == "" {
		status = color.YellowString("no reply")
	}
	return []string{addr, h.Domain, h.Type.String(), h.Data, result, status}
}

func countListed(hits []dnsbl.Hit) int {
	n := 0
	for _, h := range hits {
		if h.Listed {
			n++
		}
	}
	return n
}
