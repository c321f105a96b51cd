package notify

import (
	"fmt"

	"github.com/olekukonko/tablewriter"

	"github.com/hazza-sg/weather-trader/internal/ports"
)

// PrintTrades imprime el resumen de trades cerrados de una sesión de papel
// o backtest: una fila por trade y un total de P&L realizado al final.
func (c *Console) PrintTrades(trades []ports.CompletedTrade) {
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "\n  no completed trades in this run")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Side", "Size", "Entry", "Exit", "Result", "PnL")

	var totalPnL float64
	wins := 0
	for i, t := range trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(t.MarketID, 30),
			string(t.Side),
			fmt.Sprintf("%.2f", t.Size),
			fmt.Sprintf("%.3f", t.EntryPrice),
			fmt.Sprintf("%.3f", t.ExitPrice),
			t.Result,
			fmt.Sprintf("%+.2f", t.RealizedPnL),
		)
		totalPnL += t.RealizedPnL
		if t.Result == "win" {
			wins++
		}
	}
	table.Render()

	winRate := float64(wins) / float64(len(trades)) * 100
	fmt.Fprintf(c.out, "\n  %d trades, %d wins (%.1f%%), total realized pnl $%.2f\n",
		len(trades), wins, winRate, totalPnL)
}
