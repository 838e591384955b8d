package stellar

import (
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"
)

// This file converts Horizon wire types into our domain model. Nothing here
// touches the network; the client feeds it raw Horizon records.

// transactionFromHorizon converts a Horizon transaction record. Operations
// are resolved separately and attached by the caller.
func transactionFromHorizon(tx hProtocol.Transaction) *Transaction {
	return &Transaction{
		ID:            tx.ID,
		Hash:          tx.Hash,
		CreatedAt:     tx.LedgerCloseTime,
		FeeCharged:    tx.FeeCharged,
		Successful:    tx.Successful,
		SourceAccount: tx.Account,
		Ledger:        tx.Ledger,
		Memo:          tx.Memo,
		PagingToken:   tx.PT,
		EnvelopeXDR:   tx.EnvelopeXdr,
		ResultXDR:     tx.ResultXdr,
	}
}

// operationFromHorizon maps a Horizon operation onto the domain union.
// Anything outside the payment set collapses to OtherOp, keeping only
// identity: fields of non-payment kinds must never leak into classification.
func operationFromHorizon(op operations.Operation) Operation {
	switch o := op.(type) {
	case operations.Payment:
		return PaymentOp{
			ID:            o.Base.ID,
			SourceAccount: o.Base.SourceAccount,
			From:          o.From,
			To:            o.To,
			Amount:        o.Amount,
			Asset:         assetFromHorizon(o.Asset),
		}
	case operations.PathPayment:
		return PathPaymentReceiveOp{
			ID:            o.Payment.Base.ID,
			SourceAccount: o.Payment.Base.SourceAccount,
			From:          o.Payment.From,
			To:            o.Payment.To,
			Amount:        o.Payment.Amount,
			Asset:         assetFromHorizon(o.Payment.Asset),
			SourceAmount:  o.SourceAmount,
			SourceAsset: assetFromHorizon(base.Asset{
				Type:   o.SourceAssetType,
				Code:   o.SourceAssetCode,
				Issuer: o.SourceAssetIssuer,
			}),
		}
	case operations.PathPaymentStrictSend:
		return PathPaymentSendOp{
			ID:            o.Payment.Base.ID,
			SourceAccount: o.Payment.Base.SourceAccount,
			From:          o.Payment.From,
			To:            o.Payment.To,
			Amount:        o.Payment.Amount,
			Asset:         assetFromHorizon(o.Payment.Asset),
			SourceAmount:  o.SourceAmount,
			SourceAsset: assetFromHorizon(base.Asset{
				Type:   o.SourceAssetType,
				Code:   o.SourceAssetCode,
				Issuer: o.SourceAssetIssuer,
			}),
		}
	case operations.CreateAccount:
		return CreateAccountOp{
			ID:              o.Base.ID,
			SourceAccount:   o.Base.SourceAccount,
			Funder:          o.Funder,
			Account:         o.Account,
			StartingBalance: o.StartingBalance,
		}
	default:
		return OtherOp{
			ID:   op.GetID(),
			Type: op.GetType(),
		}
	}
}

// assetFromHorizon converts a Horizon asset descriptor. Horizon reports the
// native asset with type "native" and empty code/issuer.
func assetFromHorizon(a base.Asset) Asset {
	if a.Type == "native" || a.Code == "" {
		return Asset{}
	}
	return Asset{Code: a.Code, Issuer: a.Issuer}
}

// accountFromHorizon converts a Horizon account record.
func accountFromHorizon(a hProtocol.Account) *AccountSummary {
	summary := &AccountSummary{
		ID:       a.AccountID,
		Sequence: a.Sequence,
		Balances: make([]Balance, 0, len(a.Balances)),
	}
	for _, b := range a.Balances {
		summary.Balances = append(summary.Balances, Balance{
			Asset:  assetFromHorizon(b.Asset),
			Amount: b.Balance,
		})
	}
	return summary
}
