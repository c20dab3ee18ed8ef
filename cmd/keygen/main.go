package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/nextprice-keeper/pkg/crypto"
)

// keygen prints a keeper key pair. With -load it derives the address of PRIVATE_KEY instead of
// generating a new key. Either way a throwaway transaction is signed and recovered to check the
// key can sign for the target chain.
func main() {
	load := flag.Bool("load", false, "use PRIVATE_KEY from the environment instead of generating a key")
	chainID := flag.Int64("chain-id", 10, "chain id to sign the self-check transaction for")
	flag.Parse()

	// Step 1: Generate or load key
	var (
		signer *crypto.Signer
		err    error
	)
	if *load {
		signer, err = crypto.FromPrivateKeyHex(os.Getenv("PRIVATE_KEY"))
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", signer.Address().Hex())
	if !*load {
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())
	}

	// Step 2: Sign a self-check transaction the same way executions are signed
	opts, err := signer.TransactOpts(context.Background(), big.NewInt(*chainID))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	to := common.Address{}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(*chainID),
		Gas:       21000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(1),
		To:        &to,
	})
	signed, err := opts.Signer(signer.Address(), tx)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}

	// Step 3: Verify signature
	recovered, err := types.Sender(types.LatestSignerForChainID(big.NewInt(*chainID)), signed)
	if err != nil || recovered != signer.Address() {
		fmt.Printf("✗ Signature INVALID (recovered %s, err %v)\n", recovered.Hex(), err)
		os.Exit(1)
	}
	fmt.Printf("✓ Signature VALID for chain %d\n\n", *chainID)

	if !*load {
		fmt.Println("Add to .env:")
		fmt.Printf("  PRIVATE_KEY=0x%s\n", signer.PrivateKeyHex())
	}
	fmt.Println("Fund this address with ETH on the target network to pay for executions.")
}
