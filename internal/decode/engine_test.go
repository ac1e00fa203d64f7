package decode

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"walletledger/internal/model"
)

var (
	walletA  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	walletB  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenUSD = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	nftCol   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	wethAddr = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
)

type fakeBackend struct {
	transfers    []model.InternalTransfer
	transfersErr error
	frames       []model.CallFrame
	framesErr    error
	balances     map[uint64]*big.Int
	balancesErr  error
}

func (f *fakeBackend) ListInternalTransfers(ctx context.Context, txHash string) ([]model.InternalTransfer, error) {
	return f.transfers, f.transfersErr
}

func (f *fakeBackend) CallFrames(ctx context.Context, txHash string) ([]model.CallFrame, error) {
	return f.frames, f.framesErr
}

func (f *fakeBackend) BalanceAt(ctx context.Context, addr common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	bal, ok := f.balances[blockNumber.Uint64()]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func uintWord(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func erc20Log(contract, from, to common.Address, amount *big.Int) *types.Log {
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{topicTransfer, addressTopic(from), addressTopic(to)},
		Data:    uintWord(amount),
	}
}

func erc721Log(contract, from, to common.Address, tokenID *big.Int) *types.Log {
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{topicTransfer, addressTopic(from), addressTopic(to), common.BytesToHash(uintWord(tokenID))},
	}
}

func erc1155SingleLog(contract, operator, from, to common.Address, tokenID, qty *big.Int) *types.Log {
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{topicTransferSingle, addressTopic(operator), addressTopic(from), addressTopic(to)},
		Data:    append(uintWord(tokenID), uintWord(qty)...),
	}
}

func erc1155BatchLog(t *testing.T, contract, operator, from, to common.Address, ids, values []*big.Int) *types.Log {
	t.Helper()
	args, err := batchArguments()
	if err != nil {
		t.Fatalf("batch arguments: %v", err)
	}
	data, err := args.Pack(ids, values)
	if err != nil {
		t.Fatalf("pack batch: %v", err)
	}
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{topicTransferBatch, addressTopic(operator), addressTopic(from), addressTopic(to)},
		Data:    data,
	}
}

func successReceipt(logs ...*types.Log) *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, Logs: logs}
}

func mustDelta(t *testing.T, deltas model.DeltaSet, key model.AssetKey, want string) {
	t.Helper()
	got := deltas.Get(key)
	if got == nil {
		t.Fatalf("asset %s missing, want %s", key, want)
	}
	if got.String() != want {
		t.Fatalf("asset %s delta = %s, want %s", key, got, want)
	}
}

func TestDecodeNilReceipt(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	if _, _, err := engine.Decode(context.Background(), walletA, model.RawTransaction{Hash: "0x1"}, nil); err == nil {
		t.Fatalf("expected error for nil receipt")
	}
}

func TestDecodeFailedReceiptIsEmpty(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: walletB.Hex(), Value: "1000000000000000000"}
	receipt := &types.Receipt{
		Status: types.ReceiptStatusFailed,
		Logs:   []*types.Log{erc20Log(tokenUSD, walletB, walletA, big.NewInt(500))},
	}

	deltas, moves, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(deltas) != 0 || len(moves) != 0 {
		t.Fatalf("failed receipt produced deltas=%d moves=%d, want none", len(deltas), len(moves))
	}
}

func TestDecodeOuterValueSeed(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletB.Hex(), To: walletA.Hex(), Value: "1500000000000000000"}

	deltas, _, err := engine.Decode(context.Background(), walletA, tx, successReceipt())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mustDelta(t, deltas, model.NativeAsset, "1500000000000000000")
}

func TestDecodeSelfSendNetsToZero(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: walletA.Hex(), Value: "1000"}

	deltas, _, err := engine.Decode(context.Background(), walletA, tx, successReceipt())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if deltas.Has(model.NativeAsset) {
		t.Fatalf("self-send left native delta %s", deltas.Get(model.NativeAsset))
	}
}

func TestDecodeERC20BothDirections(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: tokenUSD.Hex()}
	receipt := successReceipt(
		erc20Log(tokenUSD, walletA, walletB, big.NewInt(700)),
		erc20Log(tokenUSD, walletB, walletA, big.NewInt(200)),
	)

	deltas, _, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	key := model.AssetForContract(tokenUSD.Hex())
	mustDelta(t, deltas, key, "-500")
}

func TestDecodeIsIdempotent(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: tokenUSD.Hex()}
	receipt := successReceipt(erc20Log(tokenUSD, walletB, walletA, big.NewInt(123)))

	first, _, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("first decode: %v", err)
	}
	second, _, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("second decode: %v", err)
	}
	key := model.AssetForContract(tokenUSD.Hex())
	if first.Get(key).Cmp(second.Get(key)) != 0 {
		t.Fatalf("decode not idempotent: %s vs %s", first.Get(key), second.Get(key))
	}
}

func TestDecodeConservationBetweenWallets(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: tokenUSD.Hex()}
	receipt := successReceipt(erc20Log(tokenUSD, walletA, walletB, big.NewInt(900)))

	fromA, _, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("decode A: %v", err)
	}
	fromB, _, err := engine.Decode(context.Background(), walletB, tx, receipt)
	if err != nil {
		t.Fatalf("decode B: %v", err)
	}

	key := model.AssetForContract(tokenUSD.Hex())
	sum := new(big.Int).Add(fromA.Get(key), fromB.Get(key))
	if sum.Sign() != 0 {
		t.Fatalf("transfer not conserved between counterparties: sum %s", sum)
	}
}

func TestDecodeERC721UnitQuantity(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: nftCol.Hex()}
	receipt := successReceipt(
		erc721Log(nftCol, walletA, walletB, big.NewInt(77)),
		erc721Log(nftCol, walletB, walletA, big.NewInt(42)),
	)

	deltas, moves, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(deltas) != 0 {
		t.Fatalf("721 transfers booked fungible deltas: %d", len(deltas))
	}
	if len(moves) != 2 {
		t.Fatalf("moves = %d, want 2", len(moves))
	}
	if moves[0].Qty.Int64() != -1 || moves[0].TokenID.Int64() != 77 {
		t.Fatalf("outbound move = %+v", moves[0])
	}
	if moves[1].Qty.Int64() != 1 || moves[1].TokenID.Int64() != 42 {
		t.Fatalf("inbound move = %+v", moves[1])
	}
}

func TestDecodeERC1155Single(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: nftCol.Hex()}
	receipt := successReceipt(erc1155SingleLog(nftCol, walletB, walletB, walletA, big.NewInt(5), big.NewInt(3)))

	_, moves, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("moves = %d, want 1", len(moves))
	}
	if moves[0].TokenID.Int64() != 5 || moves[0].Qty.Int64() != 3 {
		t.Fatalf("move = %+v", moves[0])
	}
}

func TestDecodeERC1155Batch(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: nftCol.Hex()}
	receipt := successReceipt(erc1155BatchLog(t, nftCol, walletA, walletA, walletB,
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
		[]*big.Int{big.NewInt(10), big.NewInt(20)},
	))

	_, moves, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(moves) != 2 {
		t.Fatalf("moves = %d, want 2", len(moves))
	}
	if moves[0].Qty.Int64() != -10 || moves[1].Qty.Int64() != -20 {
		t.Fatalf("batch quantities = %s, %s", moves[0].Qty, moves[1].Qty)
	}
}

func TestDecodeERC1155BatchLengthMismatch(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: nftCol.Hex()}
	receipt := successReceipt(erc1155BatchLog(t, nftCol, walletA, walletA, walletB,
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
		[]*big.Int{big.NewInt(10)},
	))

	_, moves, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(moves) != 0 {
		t.Fatalf("mismatched batch produced %d moves, want 0", len(moves))
	}
}

func TestDecodeMalformedLogContributesZero(t *testing.T) {
	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: tokenUSD.Hex()}
	receipt := successReceipt(
		// ERC20 Transfer with empty data payload.
		&types.Log{Address: tokenUSD, Topics: []common.Hash{topicTransfer, addressTopic(walletB), addressTopic(walletA)}},
		erc20Log(tokenUSD, walletB, walletA, big.NewInt(50)),
	)

	deltas, _, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mustDelta(t, deltas, model.AssetForContract(tokenUSD.Hex()), "50")
}

func TestDecodeWrapAndUnwrap(t *testing.T) {
	amount := big.NewInt(1_000_000)

	depositLog := &types.Log{
		Address: wethAddr,
		Topics:  []common.Hash{topicWrapDeposit, addressTopic(walletA)},
		Data:    uintWord(amount),
	}
	withdrawalLog := &types.Log{
		Address: wethAddr,
		Topics:  []common.Hash{topicWrapWithdrawal, addressTopic(walletA)},
		Data:    uintWord(amount),
	}

	engine := NewEngine(&fakeBackend{}, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: wethAddr.Hex()}

	deltas, _, err := engine.Decode(context.Background(), walletA, tx, successReceipt(depositLog))
	if err != nil {
		t.Fatalf("decode deposit: %v", err)
	}
	mustDelta(t, deltas, model.NativeAsset, "-1000000")

	deltas, _, err = engine.Decode(context.Background(), walletA, tx, successReceipt(withdrawalLog))
	if err != nil {
		t.Fatalf("decode withdrawal: %v", err)
	}
	mustDelta(t, deltas, model.NativeAsset, "1000000")
}

func TestDecodeInternalTransfers(t *testing.T) {
	backend := &fakeBackend{
		transfers: []model.InternalTransfer{
			{From: walletB.Hex(), To: walletA.Hex(), Value: big.NewInt(250)},
		},
	}
	engine := NewEngine(backend, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: walletB.Hex()}

	deltas, _, err := engine.Decode(context.Background(), walletA, tx, successReceipt())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mustDelta(t, deltas, model.NativeAsset, "250")
}

func TestDecodeTraceFallback(t *testing.T) {
	backend := &fakeBackend{
		transfersErr: context.DeadlineExceeded,
		frames: []model.CallFrame{
			{Type: "call", From: walletB.Hex(), To: walletA.Hex(), Value: big.NewInt(9000)},
		},
	}
	engine := NewEngine(backend, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletB.Hex(), To: walletB.Hex()}

	deltas, _, err := engine.Decode(context.Background(), walletA, tx, successReceipt())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mustDelta(t, deltas, model.NativeAsset, "9000")
}

func TestDecodeBalanceDiffFallbackAddsGasBack(t *testing.T) {
	gasPrice := big.NewInt(10)
	receipt := successReceipt()
	receipt.GasUsed = 21000
	receipt.EffectiveGasPrice = gasPrice

	backend := &fakeBackend{
		transfersErr: context.DeadlineExceeded,
		framesErr:    context.DeadlineExceeded,
		balances: map[uint64]*big.Int{
			99:  big.NewInt(1_000_000),
			100: big.NewInt(500_000),
		},
	}
	engine := NewEngine(backend, nil)
	tx := model.RawTransaction{Hash: "0x1", From: walletA.Hex(), To: walletB.Hex(), BlockNumber: "100"}

	deltas, _, err := engine.Decode(context.Background(), walletA, tx, receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Raw diff −500000 plus 21000×10 gas added back.
	mustDelta(t, deltas, model.NativeAsset, "-290000")
}

func TestGasCostFallsBackToTxGasPrice(t *testing.T) {
	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 21000}
	tx := model.RawTransaction{GasPrice: "5"}

	if got := GasCost(tx, receipt); got.String() != "105000" {
		t.Fatalf("gas cost = %s, want 105000", got)
	}

	receipt.EffectiveGasPrice = big.NewInt(7)
	if got := GasCost(tx, receipt); got.String() != "147000" {
		t.Fatalf("gas cost = %s, want 147000", got)
	}
}
