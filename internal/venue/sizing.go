package venue

import (
	"fmt"
	"math"
)

// PositionSizeFromRisk derives an order quantity from the fraction of the
// account risked per trade and the distance to the stop-loss:
//
//	riskAmount = accountBalance × riskPercent/100
//	quantity   = riskAmount / |entryPrice - stopLossPrice|
//
// An entry price equal to the stop-loss price is a sizing failure, not an
// infinite quantity.
func PositionSizeFromRisk(accountBalance, riskPercent, entryPrice, stopLossPrice float64) (float64, error) {
	if accountBalance <= 0 {
		return 0, fmt.Errorf("account balance must be positive, got %v", accountBalance)
	}
	if riskPercent <= 0 {
		return 0, fmt.Errorf("risk percent must be positive, got %v", riskPercent)
	}
	stopDistance := math.Abs(entryPrice - stopLossPrice)
	if stopDistance == 0 {
		return 0, fmt.Errorf("entry price %v equals stop-loss price: cannot size position", entryPrice)
	}
	riskAmount := accountBalance * riskPercent / 100
	return riskAmount / stopDistance, nil
}
