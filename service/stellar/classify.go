package stellar

import (
	"github.com/stellar/go/amount"
)

// stroopsPerUnit is the number of stroops in one whole asset unit. Horizon
// reports all amounts as 7-decimal strings.
const stroopsPerUnit = 1e7

// Classify maps one operation inside a transaction onto a PaymentRecord,
// relative to a watched account.
//
// It returns (nil, nil) when the operation is not a payment kind, and
// (nil, *ParseError) when a payment-kind operation carries a malformed
// amount: such records are dropped, never fabricated with a zero amount.
//
// Classify is a pure function. It performs no I/O, does not mutate its
// inputs, and always yields an identical record for identical inputs, so it
// is safe to re-run on already-seen data.
func Classify(tx *Transaction, op Operation, watched string) (*PaymentRecord, error) {
	var (
		amt       string
		asset     Asset
		from, to  string
		source    string
		isCreate  bool
		createdTo string
	)

	switch o := op.(type) {
	case PaymentOp:
		amt, asset, from, to, source = o.Amount, o.Asset, o.From, o.To, o.SourceAccount
	case PathPaymentReceiveOp:
		amt, asset, from, to, source = o.Amount, o.Asset, o.From, o.To, o.SourceAccount
	case PathPaymentSendOp:
		amt, asset, from, to, source = o.Amount, o.Asset, o.From, o.To, o.SourceAccount
	case CreateAccountOp:
		// Starting balance is always native; the funder pays it.
		amt, asset = o.StartingBalance, Asset{}
		from, to = o.Funder, o.Account
		source = o.SourceAccount
		isCreate, createdTo = true, o.Account
	default:
		return nil, nil
	}

	stroops, err := amount.ParseInt64(amt)
	if err != nil {
		return nil, &ParseError{
			OperationID: op.OperationID(),
			Field:       "amount",
			Value:       amt,
			Err:         err,
		}
	}

	// Direction resolution is deterministic and total: incoming only when the
	// watched account is strictly the receiver; anything else, including an
	// operation that does not touch the watched account at all, is reported
	// as outgoing.
	direction := DirectionOutgoing
	incoming := to == watched
	outgoing := from == watched || source == watched
	if incoming && !outgoing {
		direction = DirectionIncoming
	} else if isCreate && createdTo == watched {
		direction = DirectionIncoming
	}

	// Status derives solely from transaction success. Pending/converting are
	// workflow states applied by callers, never produced here.
	status := StatusCompleted
	if !tx.Successful {
		status = StatusFailed
	}

	return &PaymentRecord{
		ID:            op.OperationID(),
		Date:          tx.CreatedAt,
		Amount:        float64(stroops) / stroopsPerUnit,
		Token:         asset.Symbol(),
		Status:        status,
		Hash:          tx.Hash,
		FromAccount:   from,
		ToAccount:     to,
		OperationType: op.OperationType(),
		Direction:     direction,
		Fee:           tx.FeeCharged,
		Memo:          tx.Memo,
	}, nil
}

// ClassifyTransaction runs Classify over every operation in the transaction,
// in operation order. Non-payment operations are skipped; ParseErrors are
// returned alongside the records that did classify so callers can count and
// log them without losing the rest of the batch.
func ClassifyTransaction(tx *Transaction, watched string) ([]*PaymentRecord, []error) {
	var (
		records []*PaymentRecord
		errs    []error
	)
	for _, op := range tx.Operations {
		rec, err := Classify(tx, op, watched)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, errs
}
