package pipelines

import (
	"context"
	"fmt"
	"time"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// entryCtx bundles the fields every entry in a pipeline run shares, so the
// per-pipeline builder functions below only need to name what differs.
type entryCtx struct {
	GroupID string
	ShortID string
	CustID  string
	OpType  string
	Quote   money.Quote
	Now     time.Time
}

// groupID derives the unique per-entry group_id a multi-entry pipeline
// step posts under: the shared operation group_id suffixed with the
// entry's own ledger_type, matching the suffixing every original_source
// posting site uses (e.g. process_custom_json.py's
// f"{custom_json.group_id}-{ledger_type.value}") so that ledger.Store's
// upsert-by-group_id never lets one entry in a pipeline run overwrite
// another.
func (ec entryCtx) groupID(lt ledger.LedgerType) string {
	return ec.GroupID + "-" + string(lt)
}

// feeSplit converts full at quote, carves a ServerFeePPM-sized fee out of
// its msats-equivalent, and returns both snapshots as independent
// Conversions so a pipeline can post the fee to revenue separately from
// the net amount it passes on. Grounded on original_source's
// conversion/hive_to_keepsats.py, which computes an identical
// before-fee/fee split before posting its four entries.
func feeSplit(full money.Amount, feePPM int64, quote money.Quote) (netConv, feeConv money.Conversion, err error) {
	fullConv, err := money.Convert(full, quote)
	if err != nil {
		return money.Conversion{}, money.Conversion{}, fmt.Errorf("pipelines: convert full amount: %w", err)
	}
	feeMsats := fullConv.Msats.Scaled().Int64() * feePPM / 1_000_000
	feeAmt, err := money.OfInt(money.MSATS, feeMsats)
	if err != nil {
		return money.Conversion{}, money.Conversion{}, err
	}
	feeConv, err = money.Convert(feeAmt, quote)
	if err != nil {
		return money.Conversion{}, money.Conversion{}, fmt.Errorf("pipelines: convert fee amount: %w", err)
	}
	netConv = fullConv.Sub(feeConv)
	return netConv, feeConv, nil
}

// postHiveToKeepsats posts the four-entry HIVE→Keepsats conversion
// sub-pipeline shared by M.1 (as a first step, before the Lightning
// payment itself) and M.3 (as the whole pipeline), grounded on
// original_source's conversion/hive_to_keepsats.py:
//  1. conv_hive_to_keepsats   — net value moves Treasury Keepsats <-> the
//     Customer Deposits Hive staging account.
//  2. contra_hive_to_keepsats — the same net value washes back out of
//     Customer Deposits Hive into its contra offset, so the staging
//     account's cumulative balance nets to zero across the two entries.
//  3. fee_income              — the carved-out service fee is recognized
//     as Keepsats revenue.
//  4. deposit_keepsats        — the net value moves out of the customer's
//     Customer Liability (HIVE side) into the server's own Customer
//     Liability sub (msats side), ready for the trailing custom_json
//     transfer that actually hands it to them.
func (e *Engine) postHiveToKeepsats(ctx context.Context, ec entryCtx, fullHive money.Amount) (netConv money.Conversion, err error) {
	netConv, feeConv, err := feeSplit(fullHive, e.cfg.ServerFeePPM, ec.Quote)
	if err != nil {
		return money.Conversion{}, err
	}

	treasuryKeepsats := mustAccount(ledger.Asset, "Treasury Keepsats", e.serverAccount, false)
	depositsHive := mustAccount(ledger.Asset, "Customer Deposits Hive", e.serverAccount, false)
	convertedOffset := mustAccount(ledger.Asset, "Converted Keepsats Offset", e.serverAccount, true)
	custLiability := mustAccount(ledger.Liability, "Customer Liability", ec.CustID, false)
	feeIncomeKeepsats := mustAccount(ledger.Revenue, "Fee Income Keepsats", e.serverAccount, false)
	serverLiability := mustAccount(ledger.Liability, "Customer Liability", e.serverAccount, false)

	conv, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledger.LedgerConvHiveToKeepsats), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledger.LedgerConvHiveToKeepsats, Timestamp: ec.Now,
		Description: "HIVE to Keepsats conversion",
		Debit:       treasuryKeepsats, DebitUnit: money.MSATS, DebitAmount: netConv.Msats, DebitConv: &netConv,
		Credit: depositsHive, CreditUnit: money.HIVE, CreditAmount: netConv.Hive, CreditConv: &netConv,
	})
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: conv_hive_to_keepsats entry: %w", err)
	}
	contra, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledger.LedgerContraHiveToKeepsats), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledger.LedgerContraHiveToKeepsats, Timestamp: ec.Now,
		Description: "HIVE to Keepsats contra reconciliation",
		Debit:       depositsHive, DebitUnit: money.HIVE, DebitAmount: netConv.Hive, DebitConv: &netConv,
		Credit: convertedOffset, CreditUnit: money.HIVE, CreditAmount: netConv.Hive, CreditConv: &netConv,
	})
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: contra_hive_to_keepsats entry: %w", err)
	}
	feeEntries := []ledger.Entry{}
	if !feeConv.Msats.IsZero() {
		feeIncome, err := ledger.NewEntry(ledger.EntryInput{
			GroupID: ec.groupID(ledger.LedgerFeeIncome), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
			LedgerType: ledger.LedgerFeeIncome, Timestamp: ec.Now,
			Description: "HIVE to Keepsats service fee",
			Debit:       custLiability, DebitUnit: money.HIVE, DebitAmount: feeConv.Hive, DebitConv: &feeConv,
			Credit: feeIncomeKeepsats, CreditUnit: money.MSATS, CreditAmount: feeConv.Msats, CreditConv: &feeConv,
		})
		if err != nil {
			return money.Conversion{}, fmt.Errorf("pipelines: fee_income entry: %w", err)
		}
		feeEntries = append(feeEntries, feeIncome)
	}
	deposit, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledgerDepositKeepsats), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledgerDepositKeepsats, Timestamp: ec.Now,
		Description: "Deposit converted Keepsats to customer",
		Debit:       custLiability, DebitUnit: money.HIVE, DebitAmount: netConv.Hive, DebitConv: &netConv,
		Credit: serverLiability, CreditUnit: money.MSATS, CreditAmount: netConv.Msats, CreditConv: &netConv,
	})
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: deposit_keepsats entry: %w", err)
	}

	all := append([]ledger.Entry{conv, contra}, feeEntries...)
	all = append(all, deposit)
	for _, entry := range all {
		if err := e.saveEntry(ctx, "hive_to_keepsats", entry); err != nil {
			return money.Conversion{}, err
		}
	}
	return netConv, nil
}

// postLightningWithdrawal posts the Lightning-payment-recording
// sub-pipeline shared by M.1, grounded on original_source's
// process/process_payment.py record_payment:
//  1. withdraw_lightning        — the total cost (payment + routing fee)
//     moves out of the customer's Keepsats liability into the
//     External Lightning Payments contra-asset staging account.
//  2. lightning_external_send   — that same total cost moves from the
//     staging account into Treasury Lightning, completing the send.
//  3. fee_expense (if routingFeeMsat > 0) — the routing fee actually
//     paid is recognized as an expense against Treasury Lightning,
//     mirroring record_payment's `if fee_msat > 0`.
func (e *Engine) postLightningWithdrawal(ctx context.Context, ec entryCtx, paymentMsat, feeMsat int64) error {
	totalMsat := paymentMsat + feeMsat
	totalAmt, err := money.OfInt(money.MSATS, totalMsat)
	if err != nil {
		return err
	}
	totalConv, err := money.Convert(totalAmt, ec.Quote)
	if err != nil {
		return fmt.Errorf("pipelines: convert withdrawal total: %w", err)
	}

	custLiability := mustAccount(ledger.Liability, "Customer Liability", ec.CustID, false)
	treasuryLightning := mustAccount(ledger.Asset, "Treasury Lightning", e.serverAccount, false)
	externalPayments := mustAccount(ledger.Asset, "External Lightning Payments", e.serverAccount, true)
	feeExpense := mustAccount(ledger.Expense, "Fee Expenses Lightning", e.serverAccount, false)

	withdraw, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledger.LedgerWithdrawLightning), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledger.LedgerWithdrawLightning, Timestamp: ec.Now,
		Description: "Withdraw Keepsats for Lightning payment",
		Debit:       custLiability, DebitUnit: money.MSATS, DebitAmount: totalConv.Msats, DebitConv: &totalConv,
		Credit: externalPayments, CreditUnit: money.MSATS, CreditAmount: totalConv.Msats, CreditConv: &totalConv,
	})
	if err != nil {
		return fmt.Errorf("pipelines: withdraw_lightning entry: %w", err)
	}
	if err := e.saveEntry(ctx, "lightning_withdrawal", withdraw); err != nil {
		return err
	}

	send, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledger.LedgerLightningExternalSend), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledger.LedgerLightningExternalSend, Timestamp: ec.Now,
		Description: "Lightning payment sent externally",
		Debit:       externalPayments, DebitUnit: money.MSATS, DebitAmount: totalConv.Msats, DebitConv: &totalConv,
		Credit: treasuryLightning, CreditUnit: money.MSATS, CreditAmount: totalConv.Msats, CreditConv: &totalConv,
	})
	if err != nil {
		return fmt.Errorf("pipelines: lightning_external_send entry: %w", err)
	}
	if err := e.saveEntry(ctx, "lightning_withdrawal", send); err != nil {
		return err
	}

	if feeMsat > 0 {
		feeAmt, err := money.OfInt(money.MSATS, feeMsat)
		if err != nil {
			return err
		}
		feeConv, err := money.Convert(feeAmt, ec.Quote)
		if err != nil {
			return fmt.Errorf("pipelines: convert routing fee: %w", err)
		}
		fee, err := ledger.NewEntry(ledger.EntryInput{
			GroupID: ec.groupID(ledgerFeeExpense), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
			LedgerType: ledgerFeeExpense, Timestamp: ec.Now,
			Description: "Lightning routing fee paid",
			Debit:       feeExpense, DebitUnit: money.MSATS, DebitAmount: feeConv.Msats, DebitConv: &feeConv,
			Credit: treasuryLightning, CreditUnit: money.MSATS, CreditAmount: feeConv.Msats, CreditConv: &feeConv,
		})
		if err != nil {
			return fmt.Errorf("pipelines: fee_expense entry: %w", err)
		}
		if err := e.saveEntry(ctx, "lightning_withdrawal", fee); err != nil {
			return err
		}
	}
	return nil
}

// postLightningToHive posts the five-entry Lightning→HIVE/HBD conversion
// sub-pipeline M.2 uses for a HIVE/HBD-target invoice (spec §4.M.2:
// "receive, convert, contra, fee income, payout"), grounded on
// original_source's actions/lnd_to_hive.py. The returned netConv holds the
// amount, in unit, that will actually be paid out to the customer once this
// function returns; the caller enqueues that transfer itself, since only
// it knows the destination Hive account name.
func (e *Engine) postLightningToHive(ctx context.Context, ec entryCtx, unit money.Currency, valueMsat int64) (netConv money.Conversion, err error) {
	valueAmt, err := money.OfInt(money.MSATS, valueMsat)
	if err != nil {
		return money.Conversion{}, err
	}
	fullConv, err := money.Convert(valueAmt, ec.Quote)
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: convert inbound value: %w", err)
	}
	var fullUnitAmt money.Amount
	switch unit {
	case money.HIVE:
		fullUnitAmt = fullConv.Hive
	case money.HBD:
		fullUnitAmt = fullConv.HBD
	default:
		return money.Conversion{}, fmt.Errorf("pipelines: postLightningToHive: unsupported target unit %q", unit)
	}
	netConv, feeConv, err := feeSplit(fullUnitAmt, e.cfg.ServerFeePPM, ec.Quote)
	if err != nil {
		return money.Conversion{}, err
	}

	treasuryLightning := mustAccount(ledger.Asset, "Treasury Lightning", e.serverAccount, false)
	custLiability := mustAccount(ledger.Liability, "Customer Liability", ec.CustID, false)
	depositsHive := mustAccount(ledger.Asset, "Customer Deposits Hive", e.serverAccount, false)
	convertedOffset := mustAccount(ledger.Asset, "Converted Hive Offset", e.serverAccount, true)
	feeIncomeHive := mustAccount(ledger.Revenue, "Fee Income Hive", e.serverAccount, false)

	receive, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledgerLightningExternalIn), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledgerLightningExternalIn, Timestamp: ec.Now,
		Description: "Inbound Lightning payment received",
		Debit:       treasuryLightning, DebitUnit: money.MSATS, DebitAmount: fullConv.Msats, DebitConv: &fullConv,
		Credit: custLiability, CreditUnit: unit, CreditAmount: fullUnitAmt, CreditConv: &fullConv,
	})
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: lightning_external_in entry: %w", err)
	}
	conv, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledgerConvLightningToHive), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledgerConvLightningToHive, Timestamp: ec.Now,
		Description: "Lightning to HIVE conversion",
		Debit:       depositsHive, DebitUnit: unit, DebitAmount: netConv.AmountFor(unit), DebitConv: &netConv,
		Credit: treasuryLightning, CreditUnit: money.MSATS, CreditAmount: netConv.Msats, CreditConv: &netConv,
	})
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: conv_lightning_to_hive entry: %w", err)
	}
	contra, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledgerContraLightningToHive), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledgerContraLightningToHive, Timestamp: ec.Now,
		Description: "Lightning to HIVE contra reconciliation",
		Debit:       convertedOffset, DebitUnit: unit, DebitAmount: netConv.AmountFor(unit), DebitConv: &netConv,
		Credit: depositsHive, CreditUnit: unit, CreditAmount: netConv.AmountFor(unit), CreditConv: &netConv,
	})
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: contra_lightning_to_hive entry: %w", err)
	}

	toSave := []ledger.Entry{receive, conv, contra}
	if !feeConv.Msats.IsZero() {
		feeIncome, err := ledger.NewEntry(ledger.EntryInput{
			GroupID: ec.groupID(ledger.LedgerFeeIncome), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
			LedgerType: ledger.LedgerFeeIncome, Timestamp: ec.Now,
			Description: "Lightning to HIVE service fee",
			Debit:       custLiability, DebitUnit: money.MSATS, DebitAmount: feeConv.Msats, DebitConv: &feeConv,
			Credit: feeIncomeHive, CreditUnit: money.MSATS, CreditAmount: feeConv.Msats, CreditConv: &feeConv,
		})
		if err != nil {
			return money.Conversion{}, fmt.Errorf("pipelines: fee_income entry: %w", err)
		}
		toSave = append(toSave, feeIncome)
	}
	for _, entry := range toSave {
		if err := e.saveEntry(ctx, "lightning_to_hive", entry); err != nil {
			return money.Conversion{}, err
		}
	}
	// The fifth entry, "payout", is the caller's outgoing Hive transfer
	// enqueue (pending.EnqueueTransaction) — not itself a ledger entry,
	// since the transfer settles on-chain rather than between internal
	// accounts; its effect on Customer Liability is recognized when the
	// transfer confirms and the balance cache is invalidated.
	return netConv, nil
}

// postLightningDeposit posts the two-entry sub-pipeline M.2 uses when an
// inbound invoice's memo marks #sats: the value never touches Hive at
// all, so it skips postHiveToKeepsats' Hive-staging legs entirely (spec
// §4.M.2: "post a DEPOSIT_LIGHTNING entry (Treasury ← External Lightning
// Payments); if target currency is Keepsats, post a CUSTOM_JSON_TRANSFER
// entry crediting the user's VSC Liability sub").
//  1. deposit_lightning    — the settled value lands in Treasury
//     Lightning out of the External Lightning Payments staging account.
//  2. custom_json_transfer — the same value (less the service fee) is
//     credited straight into the customer's Keepsats liability bucket.
func (e *Engine) postLightningDeposit(ctx context.Context, ec entryCtx, valueMsat int64) (netConv money.Conversion, err error) {
	valueAmt, err := money.OfInt(money.MSATS, valueMsat)
	if err != nil {
		return money.Conversion{}, err
	}
	netConv, feeConv, err := feeSplit(valueAmt, e.cfg.ServerFeePPM, ec.Quote)
	if err != nil {
		return money.Conversion{}, err
	}
	fullConv, err := money.Convert(valueAmt, ec.Quote)
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: convert inbound value: %w", err)
	}

	treasuryLightning := mustAccount(ledger.Asset, "Treasury Lightning", e.serverAccount, false)
	externalPayments := mustAccount(ledger.Asset, "External Lightning Payments", e.serverAccount, true)
	custLiability := mustAccount(ledger.Liability, "Customer Liability", ec.CustID, false)
	feeIncomeKeepsats := mustAccount(ledger.Revenue, "Fee Income Keepsats", e.serverAccount, false)

	deposit, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledgerDepositLightning), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledgerDepositLightning, Timestamp: ec.Now,
		Description: "Inbound Lightning payment received as Keepsats",
		Debit:       treasuryLightning, DebitUnit: money.MSATS, DebitAmount: fullConv.Msats, DebitConv: &fullConv,
		Credit: externalPayments, CreditUnit: money.MSATS, CreditAmount: fullConv.Msats, CreditConv: &fullConv,
	})
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: deposit_lightning entry: %w", err)
	}
	if err := e.saveEntry(ctx, "lightning_to_hive", deposit); err != nil {
		return money.Conversion{}, err
	}

	transfer, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: ec.groupID(ledgerCustomJSONTransfer), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
		LedgerType: ledgerCustomJSONTransfer, Timestamp: ec.Now,
		Description: "Credit Keepsats to customer",
		Debit:       externalPayments, DebitUnit: money.MSATS, DebitAmount: netConv.Msats, DebitConv: &netConv,
		Credit: custLiability, CreditUnit: money.MSATS, CreditAmount: netConv.Msats, CreditConv: &netConv,
	})
	if err != nil {
		return money.Conversion{}, fmt.Errorf("pipelines: custom_json_transfer entry: %w", err)
	}
	if err := e.saveEntry(ctx, "lightning_to_hive", transfer); err != nil {
		return money.Conversion{}, err
	}

	if !feeConv.Msats.IsZero() {
		feeIncome, err := ledger.NewEntry(ledger.EntryInput{
			GroupID: ec.groupID(ledger.LedgerFeeIncome), ShortID: ec.ShortID, CustID: ec.CustID, OpType: ec.OpType,
			LedgerType: ledger.LedgerFeeIncome, Timestamp: ec.Now,
			Description: "Lightning to Keepsats service fee",
			Debit:       custLiability, DebitUnit: money.MSATS, DebitAmount: feeConv.Msats, DebitConv: &feeConv,
			Credit: feeIncomeKeepsats, CreditUnit: money.MSATS, CreditAmount: feeConv.Msats, CreditConv: &feeConv,
		})
		if err != nil {
			return money.Conversion{}, fmt.Errorf("pipelines: fee_income entry: %w", err)
		}
		if err := e.saveEntry(ctx, "lightning_to_hive", feeIncome); err != nil {
			return money.Conversion{}, err
		}
	}
	return netConv, nil
}
