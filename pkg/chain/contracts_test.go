package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/nextprice-keeper/pkg/crypto"
	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
)

func newTestClient(t *testing.T, b *fakeBackend) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), b, 0, 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	b := newFakeBackend()

	c := newTestClient(t, b)
	if c.ChainID.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("ChainID = %s", c.ChainID)
	}
	if c.limiter != nil {
		t.Errorf("rate 0 should disable limiting")
	}

	limited, err := NewClient(context.Background(), b, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if limited.limiter == nil || limited.limiter.Burst() != 1 {
		t.Errorf("expected limiter with burst 1")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limited.wait(ctx); err == nil {
		t.Errorf("wait on cancelled context should fail")
	}
}

func TestFuturesMarket_BaseAsset(t *testing.T) {
	b := newFakeBackend()
	b.baseAsset = FormatBytes32String("sETH")
	m := NewFuturesMarket(common.HexToAddress("0xaa"), newTestClient(t, b), nil)

	asset, err := m.BaseAsset(context.Background())
	if err != nil {
		t.Fatalf("BaseAsset: %v", err)
	}
	if got := ParseBytes32String([32]byte(asset)); got != "sETH" {
		t.Errorf("asset = %q", got)
	}

	b.callErr = errors.New("connection refused")
	if _, err := m.BaseAsset(context.Background()); err == nil {
		t.Errorf("expected call error")
	}
}

func TestExchangeRates_CurrentRoundID(t *testing.T) {
	b := newFakeBackend()
	b.rounds[FormatBytes32String("sETH")] = big.NewInt(501)
	r := NewExchangeRates(common.HexToAddress("0xe1"), newTestClient(t, b))

	round, err := r.CurrentRoundID(context.Background(), keeper.Asset(FormatBytes32String("sETH")))
	if err != nil {
		t.Fatalf("CurrentRoundID: %v", err)
	}
	if round.Cmp(big.NewInt(501)) != 0 {
		t.Errorf("round = %s, want 501", round)
	}
}

func TestDiscoverMarkets(t *testing.T) {
	b := newFakeBackend()
	b.markets = []common.Address{common.HexToAddress("0xa1"), common.HexToAddress("0xa2")}

	got, err := DiscoverMarkets(context.Background(), newTestClient(t, b), common.HexToAddress("0xf1"))
	if err != nil {
		t.Fatalf("DiscoverMarkets: %v", err)
	}
	if len(got) != 2 || got[0] != b.markets[0] || got[1] != b.markets[1] {
		t.Errorf("markets = %v", got)
	}
}

func TestFuturesMarket_ExecuteNextPriceOrder(t *testing.T) {
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	account := common.HexToAddress("0x1234")
	marketAddr := common.HexToAddress("0xaa")

	tests := []struct {
		name       string
		status     uint64
		wantRevert bool
	}{
		{"mined", types.ReceiptStatusSuccessful, false},
		{"reverted", types.ReceiptStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			b.receiptStatus = tt.status
			m := NewFuturesMarket(marketAddr, newTestClient(t, b), signer)

			receipt, err := m.ExecuteNextPriceOrder(context.Background(), account)
			if tt.wantRevert {
				if !errors.Is(err, ErrReverted) {
					t.Fatalf("err = %v, want ErrReverted", err)
				}
			} else if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if receipt == nil {
				t.Fatal("expected receipt")
			}

			sent := b.sentTxs()
			if len(sent) != 1 {
				t.Fatalf("sent %d txs, want 1", len(sent))
			}
			tx := sent[0]
			if receipt.TxHash != tx.Hash() {
				t.Errorf("receipt for %s, sent %s", receipt.TxHash.Hex(), tx.Hash().Hex())
			}
			if tx.To() == nil || *tx.To() != marketAddr {
				t.Errorf("tx to %v, want market", tx.To())
			}

			method, err := futuresMarketABI.MethodById(tx.Data()[:4])
			if err != nil || method.Name != "executeNextPriceOrder" {
				t.Fatalf("calldata selects %v (%v)", method, err)
			}
			args, err := method.Inputs.Unpack(tx.Data()[4:])
			if err != nil || args[0].(common.Address) != account {
				t.Errorf("calldata account %v (%v)", args, err)
			}

			from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(10)), tx)
			if err != nil || from != signer.Address() {
				t.Errorf("signed by %s (%v), want %s", from.Hex(), err, signer.Address().Hex())
			}
		})
	}
}

func TestFuturesMarket_ExecuteSendFailure(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	b := newFakeBackend()
	b.sendErr = errors.New("nonce too low")
	m := NewFuturesMarket(common.HexToAddress("0xaa"), newTestClient(t, b), signer)

	if _, err := m.ExecuteNextPriceOrder(context.Background(), common.HexToAddress("0x1")); err == nil {
		t.Fatal("expected send error")
	}
}

func TestFuturesMarket_ExecuteWithoutSigner(t *testing.T) {
	m := NewFuturesMarket(common.HexToAddress("0xaa"), newTestClient(t, newFakeBackend()), nil)
	if _, err := m.ExecuteNextPriceOrder(context.Background(), common.HexToAddress("0x1")); err == nil {
		t.Fatal("expected error without signer")
	}
}
