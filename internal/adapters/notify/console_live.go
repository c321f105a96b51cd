package notify

import (
	"fmt"
	"time"

	"github.com/hazza-sg/weather-trader/internal/domain"
)

// LiveReportInput agrupa los datos necesarios para imprimir el estado
// operativo del motor en modo live.
type LiveReportInput struct {
	Risk          domain.RiskState
	OpenPositions []domain.Position
	EngineState   string
}

// PrintLiveReport imprime el estado de riesgo, posiciones abiertas y salud
// del motor. Ninguna tarea programada del motor lo invoca.
func (c *Console) PrintLiveReport(in LiveReportInput) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] engine:%s  daily_pnl:$%.2f  weekly_pnl:$%.2f  monthly_pnl:$%.2f\n",
		now, in.EngineState, in.Risk.DailyPnL, in.Risk.WeeklyPnL, in.Risk.MonthlyPnL)

	if in.Risk.IsHalted {
		fmt.Fprintf(c.out, "  HALTED: cause=%s reason=%q since=%s\n",
			in.Risk.HaltCause, in.Risk.HaltReason, in.Risk.HaltTime.Format(time.RFC3339))
	}

	if len(in.OpenPositions) == 0 {
		fmt.Fprintln(c.out, "  no open positions")
		return
	}

	var totalUnrealized float64
	for _, p := range in.OpenPositions {
		totalUnrealized += p.UnrealizedPnL
	}
	fmt.Fprintf(c.out, "  %d open positions, unrealized pnl $%.2f\n", len(in.OpenPositions), totalUnrealized)
	for _, p := range in.OpenPositions {
		fmt.Fprintf(c.out, "    %s %s %s qty:%.2f entry:%.3f now:%.3f pnl:%+.2f\n",
			p.PositionID, p.MarketID, p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice, p.UnrealizedPnL)
	}
}
