package models

// DividendRecord is one ex-date dividend entry computed by replay. All
// intermediate values are retained for audit and per-year display.
type DividendRecord struct {
	ExDate      string  `json:"ex_date"`
	PerShare    float64 `json:"per_share"`
	SharesHeld  float64 `json:"shares_held"`
	GrossNative float64 `json:"gross_native"`
	WHTRate     float64 `json:"wht_rate"`
	TaxNative   float64 `json:"tax_native"`
	NetNative   float64 `json:"net_native"`
	FXRate      float64 `json:"fx_rate"` // native -> base on the ex-date
	NetBase     float64 `json:"net_base"`
	Currency    string  `json:"currency"`
	Year        int     `json:"year"`
}

// Position is the replayed state of one ticker under the average-cost method.
// It is rebuilt on every portfolio computation and never persisted; live price
// and FX are valid only for the lifetime of one snapshot.
type Position struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Country  string `json:"country"`

	Shares                float64 `json:"shares"`
	TotalInvestmentNative float64 `json:"total_investment_native"` // all buy costs ever, never decreases
	CostBasisNative       float64 `json:"cost_basis_native"`       // remaining open cost, avg-cost method
	RealizedPNLNative     float64 `json:"realized_pnl_native"`     // realized trade P&L in native currency

	// Transactions holds the enriched events (effective FX set) replayed into
	// this position, for use by the performance engine.
	Transactions []*Transaction `json:"transactions,omitempty"`

	DividendsNetBase float64          `json:"dividends_net_base"`
	DividendRecords  []DividendRecord `json:"dividend_records,omitempty"`

	LivePrice  float64 `json:"live_price"`
	LiveFXRate float64 `json:"live_fx_rate"`

	// FXDegraded marks that at least one FX lookup for this position fell back
	// to 1.0, so base-currency figures should not be fully trusted.
	FXDegraded bool `json:"fx_degraded,omitempty"`
}

// CostPerShareNative returns the blended average cost per held share.
func (p *Position) CostPerShareNative() float64 {
	if p.Shares == 0 {
		return 0
	}
	return p.CostBasisNative / p.Shares
}

// TotalInvestmentBase returns all buy costs converted at the live FX rate.
func (p *Position) TotalInvestmentBase() float64 {
	return p.TotalInvestmentNative * p.LiveFXRate
}

// ExposureBase returns the remaining open cost at the live FX rate.
func (p *Position) ExposureBase() float64 {
	return p.CostBasisNative * p.LiveFXRate
}

// MarketValueBase returns the market value of current holdings in the base currency.
func (p *Position) MarketValueBase() float64 {
	return p.Shares * p.LivePrice * p.LiveFXRate
}

// RealizedTradePNLBase converts realized trade P&L at the live FX rate.
// The native figure already nets two native-currency legs, so one live rate is
// applied for dashboard consistency rather than the rate at time of each sale.
func (p *Position) RealizedTradePNLBase() float64 {
	return p.RealizedPNLNative * p.LiveFXRate
}

// RealizedPNLBase is trade P&L plus net dividends, each leg at its own rate
// (dividends were converted at their ex-date rates during replay).
func (p *Position) RealizedPNLBase() float64 {
	return p.RealizedTradePNLBase() + p.DividendsNetBase
}

// UnrealizedPNLBase is market value minus exposure, zero for flat positions.
func (p *Position) UnrealizedPNLBase() float64 {
	if p.Shares == 0 {
		return 0
	}
	return p.MarketValueBase() - p.ExposureBase()
}

// TotalPNLBase is realized plus unrealized P&L in the base currency.
func (p *Position) TotalPNLBase() float64 {
	return p.RealizedPNLBase() + p.UnrealizedPNLBase()
}

// DividendsForYear sums net base-currency dividends recorded in a calendar year.
func (p *Position) DividendsForYear(year int) float64 {
	var total float64
	for _, r := range p.DividendRecords {
		if r.Year == year {
			total += r.NetBase
		}
	}
	return total
}
