package strategy

import "github.com/alejandrodnm/skewmm/internal/domain"

// Quoter define el contrato de una estrategia de cotización: dado el
// inventario actual y el mid price, devuelve el par bid/ask objetivo.
// Las implementaciones deben ser puras y deterministas.
type Quoter interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// Quote calcula la cotización para un ciclo de decisión.
	Quote(inventory, mid float64) (domain.Quote, error)
}
