package decode

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"walletledger/internal/model"
	"walletledger/internal/token"
)

const (
	amountMinDP = 2
	amountMaxDP = 12
	gasMinDP    = 5
	gasMaxDP    = 8
)

// localTimeLayout matches the tx_timestamp column downstream stages parse.
const localTimeLayout = "2006-01-02 15:04:05 MST"

// FormatUnits renders the absolute value of a base-unit amount scaled by
// the asset's decimals, trimming trailing zeros but keeping at least minDP
// fractional digits.
func FormatUnits(amount *big.Int, decimals uint8, minDP, maxDP int) string {
	abs := new(big.Int).Abs(amount)
	scaled := decimal.NewFromBigInt(abs, -int32(decimals))
	fixed := scaled.StringFixed(int32(maxDP))

	whole, frac, _ := strings.Cut(fixed, ".")
	frac = strings.TrimRight(frac, "0")
	for len(frac) < minDP {
		frac += "0"
	}
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// SignedAmount renders one ledger entry of the form "±amount SYMBOL".
func SignedAmount(delta *big.Int, decimals uint8, symbol string) string {
	sign := "+"
	if delta.Sign() < 0 {
		sign = "-"
	}
	return sign + FormatUnits(delta, decimals, amountMinDP, amountMaxDP) + " " + symbol
}

// GasETH renders a gas cost in native units with the gas column precision.
func GasETH(wei *big.Int) string {
	return FormatUnits(wei, 18, gasMinDP, gasMaxDP)
}

// NftEntry renders one NFT movement of the form "±NAME#id" with an
// " x qty" suffix for quantities beyond one.
func NftEntry(name string, tokenID, qty *big.Int) string {
	sign := "+"
	if qty.Sign() < 0 {
		sign = "-"
	}
	label := sign + name + "#" + tokenID.String()
	abs := new(big.Int).Abs(qty)
	if abs.Cmp(big.NewInt(1)) != 0 {
		label += " x " + abs.String()
	}
	return label
}

// FormatLocalTime renders a unix timestamp in the configured display zone.
func FormatLocalTime(unix int64, loc *time.Location) string {
	if unix == 0 {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(unix, 0).In(loc).Format(localTimeLayout)
}

// BuildSentReceived splits the deltas into the amount_sent and
// amount_received columns, "; "-joined in deterministic asset order.
func BuildSentReceived(ctx context.Context, resolver *token.Resolver, deltas model.DeltaSet) (string, string) {
	var sent, received []string
	for _, key := range deltas.Keys() {
		delta := deltas.Get(key)
		if delta == nil || delta.Sign() == 0 {
			continue
		}

		var entry string
		if key.IsNative() {
			entry = SignedAmount(delta, 18, "ETH")
		} else {
			meta := resolver.Meta(ctx, common.HexToAddress(string(key)))
			entry = SignedAmount(delta, meta.Decimals, meta.Symbol)
		}

		if delta.Sign() < 0 {
			sent = append(sent, entry)
		} else {
			received = append(received, entry)
		}
	}
	return strings.Join(sent, "; "), strings.Join(received, "; ")
}

// BuildNftField renders the nft_transfer column from the wallet's moves.
func BuildNftField(ctx context.Context, resolver *token.Resolver, moves []model.NftMove) string {
	if len(moves) == 0 {
		return ""
	}
	entries := make([]string, 0, len(moves))
	for _, move := range moves {
		name := resolver.DisplayName(ctx, common.HexToAddress(move.Contract))
		entries = append(entries, NftEntry(name, move.TokenID, move.Qty))
	}
	return strings.Join(entries, "; ")
}
