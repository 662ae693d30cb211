package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/skewmm/internal/application/engine"
	"github.com/alejandrodnm/skewmm/internal/domain"
)

// Console imprime reportes legibles en terminal.
type Console struct {
	out io.Writer
}

// NewConsole crea un Console que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un Console sobre w (tests).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintTrades imprime los trades archivados (más recientes primero) y los
// totales. total es el número de trades en el archivo completo.
func (c *Console) PrintTrades(trades []domain.Trade, total int) {
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║                     ARCHIVED TRADES                          ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════╝\n\n")

	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  (no trades archived yet)")
		fmt.Fprintln(c.out)
		return
	}

	fmt.Fprintf(c.out, "  Showing %d of %d archived trades\n\n", len(trades), total)

	table := tablewriter.NewWriter(c.out)
	table.Header("Time (UTC)", "Symbol", "Side", "Price", "Amount", "Fee", "Liq", "Trade ID")
	for _, t := range trades {
		table.Append(
			t.Time().Format("2006-01-02 15:04:05"),
			t.Symbol,
			string(t.Side),
			fmt.Sprintf("%.2f", t.Price),
			fmt.Sprintf("%.0f", t.Amount),
			fmt.Sprintf("%+.8f", t.Fee),
			liquidityLabel(t.Liquidity),
			engine.TruncateStr(t.ID, 16),
		)
	}
	table.Render()

	s := domain.Summarize(trades)
	fmt.Fprintf(c.out, "\n  Trades:      %d (%d maker)\n", s.Count, s.MakerCount)
	fmt.Fprintf(c.out, "  Period:      %s → %s\n",
		s.First.Format("2006-01-02 15:04"), s.Last.Format("2006-01-02 15:04"))
	fmt.Fprintf(c.out, "  Bought:      %.0f\n", s.BuyVolume)
	fmt.Fprintf(c.out, "  Sold:        %.0f\n", s.SellVolume)
	fmt.Fprintf(c.out, "  Net:         %+.0f\n", s.NetInventory())
	fmt.Fprintf(c.out, "  Fees:        %+.8f\n\n", s.TotalFees)
}

// PrintSession imprime el estado final de inventario y PnL al salir.
func (c *Console) PrintSession(instrument string, snap domain.InventorySnapshot, elapsed time.Duration) {
	currency := engine.BaseCurrency(instrument)

	fmt.Fprintf(c.out, "\n── SESSION %s (%s) ──\n", instrument, elapsed.Truncate(time.Second))
	fmt.Fprintf(c.out, "  Inventory:      %+.0f\n", snap.Inventory)
	fmt.Fprintf(c.out, "  Unrealized PnL: %+.8f %s\n", snap.UnrealizedPnL, currency)
	if snap.HasInitialEquity() {
		fmt.Fprintf(c.out, "  Session PnL:    %+.8f %s (initial equity %.8f)\n",
			snap.CumulativePnL, currency, *snap.InitialEquity)
	} else {
		fmt.Fprintf(c.out, "  Session PnL:    n/a (equity never reconciled)\n")
	}
	fmt.Fprintf(c.out, "  Fills applied:  %d | Reconciles: %d\n\n", snap.Fills, snap.Reconciles)
}

func liquidityLabel(l domain.Liquidity) string {
	switch l {
	case domain.LiquidityMaker:
		return "M"
	case domain.LiquidityTaker:
		return "T"
	}
	return string(l)
}
