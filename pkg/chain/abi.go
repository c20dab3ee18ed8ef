package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the fragments the keeper touches are included.

const futuresMarketABIJSON = `[
  {"type":"function","name":"baseAsset","stateMutability":"view","inputs":[],
   "outputs":[{"name":"key","type":"bytes32"}]},
  {"type":"function","name":"executeNextPriceOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"account","type":"address"}],"outputs":[]},
  {"type":"event","name":"NextPriceOrderSubmitted","anonymous":false,"inputs":[
    {"name":"account","type":"address","indexed":true},
    {"name":"sizeDelta","type":"int256","indexed":false},
    {"name":"targetRoundId","type":"uint256","indexed":false},
    {"name":"commitDeposit","type":"uint256","indexed":false},
    {"name":"keeperDeposit","type":"uint256","indexed":false},
    {"name":"trackingCode","type":"bytes32","indexed":false}]},
  {"type":"event","name":"NextPriceOrderRemoved","anonymous":false,"inputs":[
    {"name":"account","type":"address","indexed":true},
    {"name":"currentRoundId","type":"uint256","indexed":false},
    {"name":"sizeDelta","type":"int256","indexed":false},
    {"name":"targetRoundId","type":"uint256","indexed":false},
    {"name":"commitDeposit","type":"uint256","indexed":false},
    {"name":"keeperDeposit","type":"uint256","indexed":false},
    {"name":"trackingCode","type":"bytes32","indexed":false}]}
]`

const futuresMarketManagerABIJSON = `[
  {"type":"function","name":"allMarkets","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"address[]"}]}
]`

const exchangeRatesABIJSON = `[
  {"type":"function","name":"getCurrentRoundId","stateMutability":"view",
   "inputs":[{"name":"currencyKey","type":"bytes32"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	futuresMarketABI        = mustParseABI(futuresMarketABIJSON)
	futuresMarketManagerABI = mustParseABI(futuresMarketManagerABIJSON)
	exchangeRatesABI        = mustParseABI(exchangeRatesABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
