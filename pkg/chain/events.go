package chain

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
)

const (
	submittedSignature = "NextPriceOrderSubmitted(address,int256,uint256,uint256,uint256,bytes32)"
	removedSignature   = "NextPriceOrderRemoved(address,uint256,int256,uint256,uint256,uint256,bytes32)"
)

var (
	OrderSubmittedTopic = eventTopic(submittedSignature)
	OrderRemovedTopic   = eventTopic(removedSignature)
)

// eventTopic returns keccak256(signature), the log's topic[0].
func eventTopic(signature string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return common.BytesToHash(h.Sum(nil))
}

// orderSubmittedData holds the non-indexed fields of NextPriceOrderSubmitted.
type orderSubmittedData struct {
	SizeDelta     *big.Int
	TargetRoundId *big.Int
	CommitDeposit *big.Int
	KeeperDeposit *big.Int
	TrackingCode  [32]byte
}

// DecodeOrderLog turns a market log into a keeper event. market is the handle for the log's
// emitting contract and is attached to submitted orders.
func DecodeOrderLog(vLog types.Log, market keeper.Market) (keeper.Event, error) {
	// topics:
	// 0: event sig
	// 1: account (address indexed)
	if len(vLog.Topics) < 2 {
		return keeper.Event{}, fmt.Errorf("unexpected topics len=%d", len(vLog.Topics))
	}
	account := common.BytesToAddress(vLog.Topics[1].Bytes())

	switch vLog.Topics[0] {
	case OrderSubmittedTopic:
		var data orderSubmittedData
		if err := futuresMarketABI.UnpackIntoInterface(&data, "NextPriceOrderSubmitted", vLog.Data); err != nil {
			return keeper.Event{}, fmt.Errorf("unpack NextPriceOrderSubmitted: %w", err)
		}

		return keeper.Event{
			Kind:        keeper.OrderSubmitted,
			Account:     account,
			BlockNumber: vLog.BlockNumber,
			TxHash:      vLog.TxHash,
			Order: &keeper.Order{
				Account:       account,
				Market:        market,
				SizeDelta:     data.SizeDelta.String(),
				TargetRoundID: data.TargetRoundId,
				CommitDeposit: data.CommitDeposit.String(),
				KeeperDeposit: data.KeeperDeposit.String(),
				TrackingCode:  ParseBytes32String(data.TrackingCode),
			},
		}, nil

	case OrderRemovedTopic:
		return keeper.Event{
			Kind:        keeper.OrderRemoved,
			Account:     account,
			BlockNumber: vLog.BlockNumber,
			TxHash:      vLog.TxHash,
		}, nil

	default:
		return keeper.Event{}, fmt.Errorf("unknown event topic %s", vLog.Topics[0].Hex())
	}
}

// ParseBytes32String decodes a NUL-padded bytes32 string such as a tracking code.
// Non-UTF-8 content is returned as hex.
func ParseBytes32String(b [32]byte) string {
	s := strings.TrimRight(string(b[:]), "\x00")
	if !utf8.ValidString(s) || strings.ContainsRune(s, 0) {
		return hexutil.Encode(b[:])
	}
	return s
}

// FormatBytes32String NUL-pads s into a bytes32, truncating past 32 bytes.
func FormatBytes32String(s string) [32]byte {
	var out [32]byte
	copy(out[:], s)
	return out
}
