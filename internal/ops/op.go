// Package ops implements the TrackedOperation framework: the polymorphic
// base every event the bridge reasons about (Hive transfers, Lightning
// invoices/payments, pending retries) shares, plus its Mongo persistence.
package ops

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// OpType discriminates the polymorphic ops collection.
type OpType string

const (
	OpTransfer             OpType = "transfer"
	OpRecurrentTransfer    OpType = "recurrent_transfer"
	OpFillRecurrentTransfer OpType = "fill_recurrent_transfer"
	OpCustomJSON           OpType = "custom_json"
	OpLimitOrderCreate     OpType = "limit_order_create"
	OpFillOrder            OpType = "fill_order"
	OpInvoice              OpType = "invoice"
	OpPayment              OpType = "payment"
	OpQuote                OpType = "quote"
	OpPendingTransaction   OpType = "pending_transaction"
	OpPendingCustomJSON    OpType = "pending_custom_json"

	// Hive operation types the ingest filters to — spec §4.F's closed
	// tracked-type set. Distinct from OpType: these describe the Hive
	// wire-level operation the ingest saw, not the internal tracked
	// representation, though several (transfer, custom_json, ...) share
	// their name.
	HiveOpAccountWitnessVote  = "account_witness_vote"
	HiveOpProducerReward      = "producer_reward"
	HiveOpProducerMissed      = "producer_missed"
	HiveOpUpdateProposalVotes = "update_proposal_votes"
	HiveOpAccountUpdate2      = "account_update2"
)

// TrackedHiveOpTypes is the closed set of Hive wire op_types the ingest
// keeps; everything else is discarded at ingest time.
var TrackedHiveOpTypes = map[string]bool{
	"transfer":                 true,
	"recurrent_transfer":       true,
	"fill_recurrent_transfer":  true,
	"custom_json":              true,
	"limit_order_create":       true,
	"fill_order":               true,
	HiveOpAccountWitnessVote:   true,
	HiveOpProducerReward:       true,
	HiveOpProducerMissed:       true,
	HiveOpUpdateProposalVotes:  true,
	HiveOpAccountUpdate2:       true,
}

// ReplyType enumerates how the bridge responded to a tracked operation.
type ReplyType string

const (
	ReplyTransfer   ReplyType = "transfer"
	ReplyCustomJSON ReplyType = "custom_json"
	ReplyPayment    ReplyType = "payment"
)

// Reply records one outbound action taken in response to a tracked
// operation (a change transfer, a notification custom_json, an outgoing
// Lightning payment).
type Reply struct {
	ReplyID      string
	ReplyType    ReplyType
	ReplyMsat    int64
	ReplyError   string
	ReplyMessage string
}

// Base holds the fields common to every TrackedOperation variant.
type Base struct {
	GroupID   string
	ShortID   string
	OpType    OpType
	Timestamp time.Time
	CustID    string
	Conv      money.Conversion
	Replies   []Reply
}

// TrackedOperation is the interface every variant (Transfer, Invoice,
// Payment, ...) satisfies, letting the store and the change-stream
// monitor handle them uniformly without knowing the concrete type. Named
// TrackedBase rather than Base because every variant embeds a Base field,
// and a method can't share a name with an embedded field.
type TrackedOperation interface {
	TrackedBase() *Base
}

// AddReply appends r to the operation's reply list. Mutates in place;
// callers persist via Store.Save afterward.
func AddReply(op TrackedOperation, r Reply) {
	b := op.TrackedBase()
	b.Replies = append(b.Replies, r)
}

// DeriveHiveGroupID builds the group_id for a Hive-sourced op:
// "{block_num}-{trx_id}-{op_in_trx}", the stable correlation key spec
// §3.6 names.
func DeriveHiveGroupID(blockNum int64, trxID string, opInTrx int) string {
	return fmt.Sprintf("%d-%s-%d", blockNum, trxID, opInTrx)
}

// DeriveLightningGroupID builds the group_id for an LND-sourced op
// (invoice or payment), derived from the payment hash.
func DeriveLightningGroupID(paymentHash string) string {
	return fmt.Sprintf("ln-%s", paymentHash)
}

// DeriveShortID hashes key into a short, memo-safe identifier (6-12
// characters), using blake2b rather than sha256 directly since it's
// the faster, modern choice for a non-cryptographic-strength short
// fingerprint and the pack's LND dependency already pulls it in.
func DeriveShortID(key string, length int) (string, error) {
	if length < 6 || length > 12 {
		return "", fmt.Errorf("ops: short_id length must be 6-12, got %d", length)
	}
	h, err := blake2b.New(32, nil)
	if err != nil {
		return "", fmt.Errorf("ops: blake2b: %w", err)
	}
	_, _ = h.Write([]byte(key))
	sum := h.Sum(nil)
	encoded := hex.EncodeToString(sum)
	return encoded[:length], nil
}
