package portfolio

import (
	"github.com/jktan/assetfolio/internal/models"
)

// Accumulate replays transactions into a position under the average-cost
// method. Transactions must be sorted ascending by date; buys raise the cost
// basis, sells realize P&L against the blended average cost and never push
// shares or basis negative.
func Accumulate(pos *models.Position, txns []*models.Transaction) {
	for _, txn := range txns {
		switch txn.Side {
		case models.SideBuy:
			cost := txn.Cost()
			pos.TotalInvestmentNative += cost
			pos.CostBasisNative += cost
			pos.Shares += txn.Quantity

		case models.SideSell:
			sellQty := txn.Quantity
			if sellQty > pos.Shares {
				sellQty = pos.Shares
			}
			if sellQty > 0 {
				avgCost := pos.CostBasisNative / pos.Shares
				pos.RealizedPNLNative += (txn.Price - avgCost) * sellQty
				pos.CostBasisNative -= avgCost * sellQty
				if pos.CostBasisNative < 0 {
					pos.CostBasisNative = 0
				}
			}
			pos.Shares -= txn.Quantity
			if pos.Shares < 0 {
				pos.Shares = 0
			}
		}
	}
	pos.Transactions = txns
}
