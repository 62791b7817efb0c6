package pipelines

import "github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"

// Ledger types the conversion pipelines introduce beyond the small set
// ledger.LedgerType pre-names. ledger's entry.go doc comment calls this
// out explicitly: the type is an open Go string, "so pipelines can
// introduce a new type without touching this package." Each of these is
// grounded on a ledger_type the original Python system posts under the
// equivalent pipeline (original_source's process/process_payment.py,
// actions/lnd_to_hive.py, conversion/hive_to_keepsats.py) that ledger's
// entry.go simply never needed a named constant for.
const (
	// ledgerDepositKeepsats records the last (fourth) entry of the
	// HIVE→Keepsats sub-pipeline: moving the converted value from the customer's
	// staging liability bucket into the server's own Keepsats pool,
	// immediately before the custom_json transfer hands it to the
	// customer (original_source's conversion/hive_to_keepsats.py).
	ledgerDepositKeepsats ledger.LedgerType = "deposit_keepsats"

	// ledgerLightningExternalIn is the inbound counterpart of
	// LedgerLightningExternalSend: an inbound settled Lightning invoice
	// landing in Treasury Lightning (original_source's actions/lnd_to_hive.py).
	ledgerLightningExternalIn ledger.LedgerType = "lightning_external_in"

	// ledgerConvLightningToHive / ledgerContraLightningToHive mirror
	// LedgerConvHiveToKeepsats / LedgerContraHiveToKeepsats in the
	// opposite direction (original_source's actions/lnd_to_hive.py).
	ledgerConvLightningToHive   ledger.LedgerType = "conv_lightning_to_hive"
	ledgerContraLightningToHive ledger.LedgerType = "contra_lightning_to_hive"

	// ledgerFeeExpense records a routing/network fee paid out, as
	// opposed to ledger.LedgerFeeIncome's fee revenue
	// (original_source's process/process_payment.py "MARK: 7").
	ledgerFeeExpense ledger.LedgerType = "fee_expense"

	// ledgerReclassifyKeepsats is M.4's Keepsats→HIVE withdrawal
	// reclassification: the mirror image of ledgerDepositKeepsats.
	ledgerReclassifyKeepsats ledger.LedgerType = "reclassify_keepsats"

	// ledgerCustomJSONTransfer is M.5's internal VSC-Liability transfer
	// between two customer sub-accounts (spec §4.M.5 names it literally
	// "CUSTOM_JSON_TRANSFER"), and is reused by M.2's Keepsats-target
	// branch for the same reason: crediting a customer's VSC Liability
	// sub off-chain (spec §4.M.2 names it literally too).
	ledgerCustomJSONTransfer ledger.LedgerType = "custom_json_transfer"

	// ledgerDepositLightning is M.2's Keepsats-target branch first entry:
	// a settled inbound invoice landing in Treasury Lightning out of the
	// External Lightning Payments staging account, with no Hive-side
	// conversion at all (spec §4.M.2 names it literally "DEPOSIT_LIGHTNING").
	ledgerDepositLightning ledger.LedgerType = "deposit_lightning"
)
