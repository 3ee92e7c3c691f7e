// Package report renders operator-facing output: console tables for the
// running process and Excel exports of the execution history.
package report

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/minhtran42/trade-executor/pkg/types"
)

// PrintStartup renders the startup banner with the configured venues.
func PrintStartup(venues []types.VenueConfig, risk types.RiskConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRADE EXECUTOR")
	t.SetStyle(table.StyleRounded)

	for _, v := range venues {
		mode := "live"
		if v.PaperTrading {
			mode = "paper"
		}
		state := "enabled"
		if !v.Enabled {
			state = "disabled"
		}
		t.AppendRow(table.Row{
			"🏪 " + v.Name,
			fmt.Sprintf("%s, %s, priority %d", mode, state, v.Priority),
		})
	}

	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"💸 Max Daily Loss", fmt.Sprintf("$%.2f", risk.MaxDailyLoss)},
		{"📏 Max Order Size", fmt.Sprintf("$%.2f", risk.MaxOrderSize)},
		{"🎯 Risk Per Trade", fmt.Sprintf("%.2f%%", risk.RiskPerTradePercent)},
		{"⏰ Trading Hours", fmt.Sprintf("%s-%s %s", risk.TradingHours.Start, risk.TradingHours.End, risk.TradingHours.Timezone)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, Align: text.AlignLeft},
	})
	t.Render()
}

// PrintVenueStatus renders one row per registered venue.
func PrintVenueStatus(statuses []types.VenueStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("VENUE STATUS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Venue", "Enabled", "Connected", "Priority", "Last Check"})

	for _, s := range statuses {
		lastCheck := "never"
		if !s.LastHealthCheck.IsZero() {
			lastCheck = s.LastHealthCheck.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{s.Name, s.Config.Enabled, s.Connected, s.Config.Priority, lastCheck})
	}
	t.Render()
}

// PrintPortfolio renders the aggregated cross-venue portfolio.
func PrintPortfolio(s *types.PortfolioSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("PORTFOLIO")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"💰 Total Value", fmt.Sprintf("$%.2f", s.TotalValue)},
		{"📈 Unrealized PnL", fmt.Sprintf("$%.2f (%.2f%%)", s.TotalPnL, s.TotalPnLPercent)},
		{"📊 Open Positions", len(s.Positions)},
	})
	if len(s.SkippedVenues) > 0 {
		t.AppendRow(table.Row{"⚠️ Skipped Venues", fmt.Sprintf("%v", s.SkippedVenues)})
	}
	t.AppendSeparator()

	for _, pos := range s.Positions {
		t.AppendRow(table.Row{
			fmt.Sprintf("%s %s", pos.Side, pos.Symbol),
			fmt.Sprintf("%.6f @ %.4f, PnL $%.2f", pos.Quantity, pos.EntryPrice, pos.UnrealizedPnL),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 22, Align: text.AlignLeft},
		{Number: 2, WidthMin: 32, Align: text.AlignLeft},
	})
	t.Render()
}
