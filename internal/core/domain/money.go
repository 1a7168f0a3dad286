package domain

import "github.com/shopspring/decimal"

// Commission is charged at a fixed 2.5% of the transaction amount and
// split 40/60 between the agent and distributor accounts. The rate is
// not configurable per call.
var (
	commissionRate = decimal.New(25, -3) // 0.025
	agentShareRate = decimal.New(4, -1)  // 0.40
)

// Round2 rounds to the smallest currency unit (cents), half away from
// zero. All derived money values in the system go through this.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Commission computes the fee for a posted amount. Computed once at
// posting time and never recomputed.
func Commission(amount decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(commissionRate))
}

// SplitCommission divides a commission 40/60 between agent and
// distributor. The distributor share is the exact remainder, so
// agent + distributor always equals the commission to the cent.
func SplitCommission(commission decimal.Decimal) (agent, distributor decimal.Decimal) {
	agent = Round2(commission.Mul(agentShareRate))
	distributor = commission.Sub(agent)
	return agent, distributor
}
