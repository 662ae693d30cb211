package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/skewmm/internal/domain"
)

const inventorySkewName = "inventory_skew"

// InventorySkewConfig configura la estrategia.
type InventorySkewConfig struct {
	Spread     float64 // fraction of mid applied to each side, e.g. 0.0002
	SkewFactor float64 // price offset per unit of inventory
}

// InventorySkew quotes symmetrically around mid and shifts both sides by
// inventory × skewFactor, so a long book quotes lower (sells more easily)
// and a short book quotes higher.
type InventorySkew struct {
	spread     decimal.Decimal
	skewFactor decimal.Decimal
}

// NewInventorySkew crea la estrategia con la configuración dada.
func NewInventorySkew(cfg InventorySkewConfig) *InventorySkew {
	return &InventorySkew{
		spread:     decimal.NewFromFloat(cfg.Spread),
		skewFactor: decimal.NewFromFloat(cfg.SkewFactor),
	}
}

// Name implementa Quoter.
func (s *InventorySkew) Name() string {
	return inventorySkewName
}

// Quote implementa Quoter.
//
//	skew = I × skewFactor
//	bid  = M × (1 − spread) − skew
//	ask  = M × (1 + spread) − skew
//
// Output is not bounded: a large long inventory can push bid to zero or
// below. The executor validates prices before submission.
func (s *InventorySkew) Quote(inventory, mid float64) (domain.Quote, error) {
	if mid <= 0 || math.IsNaN(mid) || math.IsInf(mid, 0) {
		return domain.Quote{}, fmt.Errorf("inventory_skew: mid %v: %w", mid, domain.ErrInvalidPrice)
	}

	m := decimal.NewFromFloat(mid)
	skew := decimal.NewFromFloat(inventory).Mul(s.skewFactor)
	one := decimal.NewFromInt(1)

	bid := m.Mul(one.Sub(s.spread)).Sub(skew)
	ask := m.Mul(one.Add(s.spread)).Sub(skew)

	return domain.Quote{
		Bid:  bid.InexactFloat64(),
		Ask:  ask.InexactFloat64(),
		Skew: skew.InexactFloat64(),
		Mid:  mid,
	}, nil
}
