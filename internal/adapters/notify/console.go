package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/hazza-sg/weather-trader/internal/domain"
)

// Console implementa ports.Notifier, reportando oportunidades de trading
// meteorológico por terminal en modo compacto o tabla completa.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime las oportunidades del ciclo en el modo configurado.
func (c *Console) Notify(_ context.Context, opportunities []domain.Opportunity) error {
	if len(opportunities) == 0 {
		fmt.Fprintf(c.out, "[%s] no opportunities found\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printFull(opportunities)
	} else {
		c.printCompact(opportunities)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(opps []domain.Opportunity) {
	now := time.Now().Format("15:04:05")
	tradeable := countTradeable(opps)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d mkts scanned, %d tradeable", now, len(opps), tradeable)

	shown := 0
	for _, opp := range opps {
		if shown >= 4 || !opp.HasRecommendation() {
			continue
		}
		fmt.Fprintf(&sb, " | %s %s edge:%.3f conf:%s",
			compactName(opp.Market.Location, 16), opp.RecommendedSide,
			opp.Edge, opp.Confidence)
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla con pronóstico, mercado y edge por oportunidad.
func (c *Console) printFull(opps []domain.Opportunity) {
	now := time.Now().Format("15:04:05")
	tradeable := countTradeable(opps)
	fmt.Fprintf(c.out, "\n[%s] %d opportunities scanned, %d tradeable\n", now, len(opps), tradeable)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Location", "Variable", "Forecast", "Market", "Edge", "EV", "Agree", "Conf", "Side")

	for i, opp := range opps {
		side := "-"
		if opp.HasRecommendation() {
			side = string(opp.RecommendedSide)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(opp.Market.Location, 20),
			string(opp.Market.Variable),
			fmt.Sprintf("%.3f", opp.ForecastProb),
			fmt.Sprintf("%.3f", opp.MarketProb),
			fmt.Sprintf("%+.3f", opp.Edge),
			fmt.Sprintf("%+.3f", opp.ExpectedValue),
			fmt.Sprintf("%.2f", opp.ModelAgreement),
			string(opp.Confidence),
			side,
		)
	}
	table.Render()
	fmt.Fprintln(c.out, "  Forecast = probabilidad agregada del ensemble | Market = precio YES clampeado")
	fmt.Fprintln(c.out, "  Edge = forecast / market - 1 en el lado recomendado | EV = valor esperado por $ apostado")
}

// --- helpers ---

func countTradeable(opps []domain.Opportunity) int {
	n := 0
	for _, o := range opps {
		if o.HasRecommendation() {
			n++
		}
	}
	return n
}

func compactName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
