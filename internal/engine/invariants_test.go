package engine

import (
	"context"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/procateodor/blockchain-marketplace/internal/market"
	"github.com/procateodor/blockchain-marketplace/internal/testutil"
)

// requireAcceptedOrPrecheck allows a step to be refused locally but never
// rejected by the ledger: every step starts from a freshly loaded view.
func requireAcceptedOrPrecheck(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		requireCode(t, err, ErrCodePrecheck)
	}
}

func TestFundWithdrawSequences_KeepInvariants(t *testing.T) {
	tests := []struct {
		name  string
		seed  int64
		dev   int64
		rev   int64
		steps int
	}{
		{name: "tight budget", seed: 1, dev: 10, rev: 2, steps: 40},
		{name: "wide budget", seed: 7, dev: 100, rev: 20, steps: 60},
		{name: "odd split", seed: 42, dev: 33, rev: 9, steps: 60},
		{name: "single token rev", seed: 2024, dev: 5, rev: 1, steps: 30},
	}
	financers := []market.Address{testutil.Financer, testutil.Financer2}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			rng := rand.New(rand.NewSource(tt.seed))
			id := testutil.MustCreate(t, f.contract, "site", tt.dev, tt.rev)
			budget := tt.dev + tt.rev

			for step := 0; step < tt.steps; step++ {
				f.login(t, financers[rng.Intn(len(financers))])
				amount := rng.Int63n(budget/2+5) - 2

				var err error
				if rng.Intn(3) == 0 {
					_, err = f.engine.Withdraw(ctx, id, amount)
				} else {
					_, err = f.engine.Fund(ctx, id, amount)
				}
				requireAcceptedOrPrecheck(t, err)

				p := f.product(t, id)
				u := f.user(t)
				assert.LessOrEqual(t, p.Funds, budget, "step %d: funds over budget", step)
				assert.GreaterOrEqual(t, p.Funds, int64(0), "step %d: negative funds", step)
				assert.GreaterOrEqual(t, p.Spent(u.Address), int64(0), "step %d: negative contribution", step)
				assert.Equal(t, p.Funds >= budget, p.HasFunds, "step %d: has-funds flag", step)
				assert.GreaterOrEqual(t, u.Tokens.Sign(), 0, "step %d: negative balance", step)
				f.requireConverged(t)
			}

			// Tokens only move between the two financers and the product.
			total := new(big.Int)
			var funds int64
			for _, a := range financers {
				f.login(t, a)
				total.Add(total, f.user(t).Tokens)
				funds = f.product(t, id).Funds
			}
			total.Add(total, big.NewInt(funds))
			assert.Equal(t, big.NewInt(2*testutil.FixtureBalance).String(), total.String())
		})
	}
}

func TestTeamSequences_SingleTransition(t *testing.T) {
	tests := []struct {
		name string
		seed int64
		dev  int64
	}{
		{name: "small dev", seed: 3, dev: 6},
		{name: "medium dev", seed: 11, dev: 12},
		{name: "large dev", seed: 99, dev: 50},
		{name: "even split", seed: 5, dev: 20},
		{name: "uneven split", seed: 8, dev: 31},
	}
	freelancers := []market.Address{testutil.Freelancer, testutil.Freelancer2, testutil.Freelancer3}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			rng := rand.New(rand.NewSource(tt.seed))
			id := f.funded(t, tt.dev, 10)

			// Two pledges complement each other so the team can fill; the
			// third is arbitrary and may be out of range.
			first := 1 + rng.Int63n(tt.dev-1)
			pledges := []int64{first, tt.dev - first, rng.Int63n(tt.dev + 3)}
			rng.Shuffle(len(pledges), func(i, j int) { pledges[i], pledges[j] = pledges[j], pledges[i] })
			for i, a := range freelancers {
				f.login(t, a)
				_, err := f.engine.Join(ctx, id, pledges[i])
				requireAcceptedOrPrecheck(t, err)
			}

			f.login(t, testutil.Manager)
			transitions := 0
			prev := f.product(t, id).Status
			for round := 0; round < 2; round++ {
				order := append([]market.Address(nil), freelancers...)
				rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
				for _, a := range order {
					_, err := f.engine.AddToTeam(ctx, id, a)
					requireAcceptedOrPrecheck(t, err)

					p := f.product(t, id)
					if prev == market.StatusBacklog && p.Status == market.StatusInProgress {
						transitions++
					}
					prev = p.Status
					assert.LessOrEqual(t, p.TeamSum(), p.Dev, "team over dev budget")
					assert.Equal(t, p.TeamSum() == p.Dev, p.Status == market.StatusInProgress,
						"status %s with team sum %d of %d", p.Status, p.TeamSum(), p.Dev)
					f.requireConverged(t)
				}
			}

			p := f.product(t, id)
			if p.TeamSum() == p.Dev {
				assert.Equal(t, 1, transitions)
			} else {
				assert.Zero(t, transitions)
				assert.Equal(t, market.StatusBacklog, p.Status)
			}
			assert.LessOrEqual(t, transitions, 1)
		})
	}
}
