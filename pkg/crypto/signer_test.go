package crypto

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}

	// 32 bytes
	if privHex := signer.PrivateKeyHex(); len(privHex) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(privHex))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()
	expectedAddr := signer1.Address()

	tests := []struct {
		name  string
		input string
	}{
		{"no prefix", privHex},
		{"0x prefix", "0x" + privHex},
		{"whitespace", "  " + privHex + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer2, err := FromPrivateKeyHex(tt.input)
			if err != nil {
				t.Fatalf("failed to load key: %v", err)
			}
			if signer2.Address() != expectedAddr {
				t.Errorf("address = %s, want %s", signer2.Address().Hex(), expectedAddr.Hex())
			}
		})
	}
}

func TestFromPrivateKeyHex_Invalid(t *testing.T) {
	if _, err := FromPrivateKeyHex("0xnothex"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestTransactOpts(t *testing.T) {
	signer, _ := GenerateKey()
	chainID := big.NewInt(10)

	opts, err := signer.TransactOpts(context.Background(), chainID)
	if err != nil {
		t.Fatalf("TransactOpts: %v", err)
	}
	if opts.From != signer.Address() {
		t.Errorf("From = %s, want %s", opts.From.Hex(), signer.Address().Hex())
	}
	if opts.Context == nil {
		t.Error("expected context set")
	}

	// The signer func must produce a transaction recoverable to the keeper address.
	tx := types.NewTx(&types.DynamicFeeTx{ChainID: chainID, Nonce: 1, Gas: 21000})
	signed, err := opts.Signer(opts.From, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != signer.Address() {
		t.Errorf("sender = %s, want %s", from.Hex(), signer.Address().Hex())
	}

	if _, err := signer.TransactOpts(context.Background(), nil); err == nil {
		t.Error("expected error for nil chain id")
	}
}
