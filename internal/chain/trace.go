package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"walletledger/internal/model"
)

type traceFrame struct {
	Type         string      `json:"type"`
	TraceAddress []int       `json:"traceAddress"`
	Action       traceAction `json:"action"`
}

type traceAction struct {
	CallType string       `json:"callType"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Value    *hexutil.Big `json:"value"`
}

func (c *Client) traceTransaction(ctx context.Context, txHash string) ([]traceFrame, error) {
	var frames []traceFrame
	err := withRetry(ctx, c.maxRetries, c.backoff, func(ctx context.Context) error {
		return c.rpcClient.CallContext(ctx, &frames, "trace_transaction", txHash)
	})
	if err != nil {
		return nil, err
	}
	return frames, nil
}

// ListInternalTransfers returns native value movements from sub-calls of a
// transaction. The top-level call is excluded; its value is already part of
// the outer transaction record.
func (c *Client) ListInternalTransfers(ctx context.Context, txHash string) ([]model.InternalTransfer, error) {
	frames, err := c.traceTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}

	transfers := make([]model.InternalTransfer, 0)
	for _, frame := range frames {
		if frame.Type != "call" || len(frame.TraceAddress) == 0 {
			continue
		}
		value := frameValue(frame)
		if value.Sign() <= 0 {
			continue
		}
		transfers = append(transfers, model.InternalTransfer{
			From:  frame.Action.From,
			To:    frame.Action.To,
			Value: value,
		})
	}
	return transfers, nil
}

// CallFrames returns every call of the transaction trace, top-level
// included, for the trace-sum native fallback.
func (c *Client) CallFrames(ctx context.Context, txHash string) ([]model.CallFrame, error) {
	frames, err := c.traceTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}

	calls := make([]model.CallFrame, 0, len(frames))
	for _, frame := range frames {
		if frame.Type != "call" {
			continue
		}
		calls = append(calls, model.CallFrame{
			Type:  frame.Type,
			From:  frame.Action.From,
			To:    frame.Action.To,
			Value: frameValue(frame),
		})
	}
	return calls, nil
}

func frameValue(frame traceFrame) *big.Int {
	if frame.Action.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(frame.Action.Value.ToInt())
}
