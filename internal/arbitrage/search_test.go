package arbitrage

import (
	"math/big"
	"testing"

	"github.com/devlongs/mev-backrunner/internal/amm"
	"github.com/devlongs/mev-backrunner/internal/reserves"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

const (
	weth = 0
	usdc = 1
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

// pool 0 and 1 trade weth/usdc; pool 2 trades weth/usdc at a smaller spread
func testSnapshot() reserves.Snapshot {
	snap := reserves.Snapshot{}
	snap.Set(0, weth, ether(1000))
	snap.Set(0, usdc, ether(2000))
	snap.Set(1, usdc, ether(2000))
	snap.Set(1, weth, ether(1100))
	snap.Set(2, usdc, ether(2000))
	snap.Set(2, weth, ether(1050))
	return snap
}

func cycle(id int, pools ...int) *types.Path {
	return &types.Path{
		ID:        id,
		TokenIDs:  []int{weth, usdc, weth},
		PoolIDs:   pools,
		Enabled:   true,
		GasAmount: 200_000,
	}
}

func TestFindOpportunitiesUncapped(t *testing.T) {
	paths := []*types.Path{cycle(0, 0, 1)}
	view := reserves.View{Snapshot: testSnapshot()}

	opps := FindOpportunities(paths, view, Params{})
	if len(opps) != 1 {
		t.Fatalf("len(opps) = %d; want 1", len(opps))
	}

	opp := opps[0]
	if want := wei("22934312012472616824"); opp.InputAmount.Cmp(want) != 0 {
		t.Errorf("InputAmount = %s; want %s", opp.InputAmount, want)
	}
	if want := wei("1047236224807529899"); opp.GrossProfit.Cmp(want) != 0 {
		t.Errorf("GrossProfit = %s; want %s", opp.GrossProfit, want)
	}
	if opp.NetProfit.Cmp(opp.GrossProfit) != 0 {
		t.Errorf("NetProfit = %s; want gross %s with no gas price", opp.NetProfit, opp.GrossProfit)
	}
	if len(opp.Amounts) != 3 || opp.Amounts[0].Cmp(opp.InputAmount) != 0 {
		t.Errorf("Amounts = %v; want 3 entries starting at input", opp.Amounts)
	}
}

func TestFindOpportunitiesRanksByNetProfit(t *testing.T) {
	paths := []*types.Path{cycle(0, 0, 2), cycle(1, 0, 1)}
	view := reserves.View{Snapshot: testSnapshot()}

	opps := FindOpportunities(paths, view, Params{GasPrice: big.NewInt(1e12)})
	if len(opps) != 2 {
		t.Fatalf("len(opps) = %d; want 2", len(opps))
	}
	if opps[0].Path.ID != 1 || opps[1].Path.ID != 0 {
		t.Errorf("order = [%d %d]; want [1 0]", opps[0].Path.ID, opps[1].Path.ID)
	}

	gasCost := new(big.Int).Mul(big.NewInt(200_000), big.NewInt(1e12))
	if want := new(big.Int).Sub(opps[0].GrossProfit, gasCost); opps[0].NetProfit.Cmp(want) != 0 {
		t.Errorf("NetProfit = %s; want %s", opps[0].NetProfit, want)
	}
}

func TestFindOpportunitiesGasAndMinProfit(t *testing.T) {
	paths := []*types.Path{cycle(0, 0, 2), cycle(1, 0, 1)}
	view := reserves.View{Snapshot: testSnapshot()}

	// 0.4 ether of gas wipes out the smaller spread
	opps := FindOpportunities(paths, view, Params{GasPrice: big.NewInt(2e12)})
	if len(opps) != 1 || opps[0].Path.ID != 1 {
		t.Fatalf("opps = %v; want only path 1", opps)
	}

	opps = FindOpportunities(paths, view, Params{MinProfit: ether(2)})
	if len(opps) != 0 {
		t.Errorf("len(opps) = %d with 2 ether minimum; want 0", len(opps))
	}
}

func TestFindOpportunitiesSkips(t *testing.T) {
	disabled := cycle(0, 0, 1)
	disabled.Enabled = false
	missing := cycle(1, 0, 9)
	flat := cycle(2, 0, 0)

	opps := FindOpportunities([]*types.Path{disabled, missing, flat}, reserves.View{Snapshot: testSnapshot()}, Params{})
	if len(opps) != 0 {
		t.Errorf("len(opps) = %d; want 0", len(opps))
	}
}

func TestFindOpportunitiesPrefersDelta(t *testing.T) {
	snap := testSnapshot()
	snap.Set(1, weth, ether(1000))

	paths := []*types.Path{cycle(0, 0, 1)}
	if opps := FindOpportunities(paths, reserves.View{Snapshot: snap}, Params{}); len(opps) != 0 {
		t.Fatalf("balanced snapshot produced %d opportunities; want 0", len(opps))
	}

	// a pending usdc->weth swap on pool 0 makes weth dear there
	overlay := reserves.NewOverlay(reserves.View{Snapshot: snap})
	overlay.Add(0, weth, ether(-100))
	overlay.Add(0, usdc, ether(200))

	view := reserves.View{Snapshot: snap, Delta: overlay.Delta()}
	opps := FindOpportunities(paths, view, Params{})
	if len(opps) != 1 {
		t.Fatalf("len(opps) = %d with delta applied; want 1", len(opps))
	}

	reservePath, _ := ReservePath(paths[0], view)
	if reservePath[0].Cmp(ether(900)) != 0 || reservePath[1].Cmp(ether(2200)) != 0 {
		t.Errorf("reservePath = %v; want delta values first", reservePath)
	}
	if want := amm.OptimalCycleInput(reservePath); opps[0].InputAmount.Cmp(want) != 0 {
		t.Errorf("InputAmount = %s; want %s", opps[0].InputAmount, want)
	}
}

func TestCapInput(t *testing.T) {
	optimal := ether(23)

	cases := []struct {
		name     string
		balance  *big.Int
		reserved *big.Int
		want     *big.Int
	}{
		{"uncapped", nil, ether(1), ether(23)},
		{"plenty", ether(100), ether(1), ether(23)},
		{"reserve binds", ether(30), ether(10), ether(20)},
		{"short balance", ether(10), ether(1), ether(10)},
	}

	for _, c := range cases {
		if got := CapInput(optimal, c.balance, c.reserved); got.Cmp(c.want) != 0 {
			t.Errorf("%s: CapInput = %s; want %s", c.name, got, c.want)
		}
	}
}

func TestFindOpportunitiesCapped(t *testing.T) {
	paths := []*types.Path{cycle(0, 0, 1)}
	view := reserves.View{Snapshot: testSnapshot()}

	opps := FindOpportunities(paths, view, Params{AvailableBalance: ether(30), ReservedGas: ether(10)})
	if len(opps) != 1 {
		t.Fatalf("len(opps) = %d; want 1", len(opps))
	}
	if opps[0].InputAmount.Cmp(ether(20)) != 0 {
		t.Errorf("InputAmount = %s; want 20 ether", opps[0].InputAmount)
	}
	if want := wei("1030749759059301965"); opps[0].GrossProfit.Cmp(want) != 0 {
		t.Errorf("GrossProfit = %s; want %s", opps[0].GrossProfit, want)
	}
}

func TestSortByProfitStable(t *testing.T) {
	opps := []*types.Opportunity{
		{Path: cycle(0), NetProfit: big.NewInt(5)},
		{Path: cycle(1), NetProfit: big.NewInt(9)},
		{Path: cycle(2), NetProfit: big.NewInt(5)},
	}

	SortByProfit(opps)
	got := []int{opps[0].Path.ID, opps[1].Path.ID, opps[2].Path.ID}
	if got[0] != 1 || got[1] != 0 || got[2] != 2 {
		t.Errorf("order = %v; want [1 0 2]", got)
	}

	if best := Best(opps); best.Path.ID != 1 {
		t.Errorf("Best = path %d; want 1", best.Path.ID)
	}
	if Best(nil) != nil {
		t.Error("Best(nil) != nil")
	}
}
