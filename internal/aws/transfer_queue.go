package aws

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"moff.io/wallet-shell/internal/shell"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

// TransferRequest is the body of a queued transfer. Count 0 sends one transaction, otherwise a batch.
type TransferRequest struct {
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
	Count    int    `json:"count"`
}

type TransferSender interface {
	Send(ctx context.Context, receiver, amount string) (*shell.Receipt, error)
	SendBatch(ctx context.Context, receiver, amount string, count int) (*shell.Receipt, error)
}

// TransferRequestHandler executes queued transfers. A request waits in the queue while the wallet
// is busy or not connected. Any other outcome removes it, so a rejected signature is never retried.
func TransferRequestHandler(sender TransferSender) QueueMessageHandler {
	return func(ctx context.Context, msg *types.Message) (bool, error) {
		var req TransferRequest
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &req); err != nil {
			return true, errors.Wrapf(err, "decode transfer request %v", aws.ToString(msg.MessageId))
		}
		var (
			receipt *shell.Receipt
			err     error
		)
		if req.Count == 0 {
			receipt, err = sender.Send(ctx, req.Receiver, req.Amount)
		} else {
			receipt, err = sender.SendBatch(ctx, req.Receiver, req.Amount, req.Count)
		}
		if errors.Is(err, shell.ErrBusy) || errors.Is(err, shell.ErrNotConnected) {
			return false, nil
		}
		if err != nil {
			return true, errors.Wrapf(err, "transfer request %v", aws.ToString(msg.MessageId))
		}
		log.Infof("transfer request %v sent as batch %v", aws.ToString(msg.MessageId), receipt.BatchID)
		return true, nil
	}
}
