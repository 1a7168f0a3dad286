package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djibys/mini-bank/internal/core/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCommission_FixedRate(t *testing.T) {
	cases := []struct {
		amount string
		want   string
	}{
		{"500", "12.5"},
		{"200", "5"},
		{"1000", "25"},
		{"0.01", "0"},     // 0.00025 rounds to zero cents
		{"100.33", "2.51"}, // 2.50825 rounds half up
	}
	for _, tc := range cases {
		got := domain.Commission(dec(tc.amount))
		assert.True(t, got.Equal(dec(tc.want)),
			"commission(%s) = %s, want %s", tc.amount, got, tc.want)
	}
}

func TestSplitCommission_SumsExactly(t *testing.T) {
	// The 40/60 split must always sum back to the commission, even when
	// 40% does not land on a whole cent.
	for _, raw := range []string{"12.5", "5", "0.01", "0.03", "2.51", "33.33", "0.05"} {
		commission := dec(raw)
		agent, distributor := domain.SplitCommission(commission)

		assert.True(t, agent.Add(distributor).Equal(commission),
			"split of %s: %s + %s != %s", commission, agent, distributor, commission)
		assert.True(t, agent.Equal(domain.Round2(commission.Mul(dec("0.4")))),
			"agent share of %s should be rounded 40%%", commission)
	}
}

func TestSplitCommission_ScenarioValues(t *testing.T) {
	// RETRAIT of 200: commission 5, agent 2.00, distributor 3.00.
	commission := domain.Commission(dec("200"))
	require.True(t, commission.Equal(dec("5")))

	agent, distributor := domain.SplitCommission(commission)
	assert.True(t, agent.Equal(dec("2")), "agent share = %s", agent)
	assert.True(t, distributor.Equal(dec("3")), "distributor share = %s", distributor)
}

func TestRound2_HalfAwayFromZero(t *testing.T) {
	assert.True(t, domain.Round2(dec("1.005")).Equal(dec("1.01")))
	assert.True(t, domain.Round2(dec("1.004")).Equal(dec("1.00")))
}
