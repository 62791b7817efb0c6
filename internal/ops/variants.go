package ops

import (
	"time"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// Transfer is a Hive `transfer` operation: from, to, amount, memo.
type Transfer struct {
	Base
	From   string
	To     string
	Unit   money.Currency
	Amount money.Amount
	Memo   string
	TrxID  string
	Block  int64
}

func (t *Transfer) TrackedBase() *Base { return &t.Base }

// RecurrentTransfer is a Hive `recurrent_transfer` operation: same shape
// as Transfer plus the recurrence parameters.
type RecurrentTransfer struct {
	Base
	From              string
	To                string
	Unit              money.Currency
	Amount            money.Amount
	Memo              string
	RecurrenceHours   int
	ExecutionCount    int
}

func (r *RecurrentTransfer) TrackedBase() *Base { return &r.Base }

// FillRecurrentTransfer is the Hive event emitted each time a recurrent
// transfer executes.
type FillRecurrentTransfer struct {
	Base
	From   string
	To     string
	Unit   money.Currency
	Amount money.Amount
	Memo   string
}

func (f *FillRecurrentTransfer) TrackedBase() *Base { return &f.Base }

// CustomJSON is a Hive `custom_json` operation carrying an
// application-defined payload (used for transfer notifications and
// reply dispatch per pipeline M.5/N).
type CustomJSON struct {
	Base
	RequiredAuths        []string
	RequiredPostingAuths []string
	ID                   string
	JSON                 string
}

func (c *CustomJSON) TrackedBase() *Base { return &c.Base }

// LimitOrderCreate is a Hive `limit_order_create` operation: the
// exchange-rebalancer's own order placement shows up as this type on
// its own account.
type LimitOrderCreate struct {
	Base
	Owner     string
	OrderID   uint32
	AmountToSell   money.Amount
	MinToReceive  money.Amount
	FillOrKill bool
	Expiration time.Time
}

func (l *LimitOrderCreate) TrackedBase() *Base { return &l.Base }

// FillOrder is the Hive event emitted when a limit order (partially)
// fills, driving pipeline M.7's exchange-conversion ledger entries.
type FillOrder struct {
	Base
	CurrentOwner   string
	CurrentOrderID uint32
	CurrentPays    money.Amount
	OpenOwner      string
	OpenOrderID    uint32
	OpenPays       money.Amount
}

func (f *FillOrder) TrackedBase() *Base { return &f.Base }

// Invoice is an LND inbound invoice, tracked from creation through
// SETTLED.
type Invoice struct {
	Base
	PaymentHash  string
	PaymentAddr  string
	ValueMsat    int64
	Memo         string
	State        string
	SettleIndex  uint64
	AddIndex     uint64
}

func (i *Invoice) TrackedBase() *Base { return &i.Base }

// Payment is an LND outbound payment, tracked through IN_FLIGHT ->
// {SUCCEEDED, FAILED}.
type Payment struct {
	Base
	PaymentHash string
	ValueMsat   int64
	FeeMsat     int64
	Status      string
	Destination string
}

func (p *Payment) TrackedBase() *Base { return &p.Base }

// PendingTransaction is a durable retry record for an outbound Hive
// transfer that could not be sent immediately (insufficient server
// balance, transient RPC failure). Field shape follows spec §4.K
// exactly: {from_account, to_account, amount, memo, resend_attempt,
// active, unique_key, nobroadcast}.
type PendingTransaction struct {
	Base
	FromAccount   string
	ToAccount     string
	Unit          money.Currency
	Amount        money.Amount
	Memo          string
	ResendAttempt int
	Active        bool
	UniqueKey     string
	NoBroadcast   bool
	LastError     string
}

func (p *PendingTransaction) TrackedBase() *Base { return &p.Base }

// PendingCustomJSON is the custom_json analogue of PendingTransaction —
// a notification or reply that needs to be resent. Same durable-retry
// shape as PendingTransaction, with JSONData standing in for
// amount/memo (spec §4.K).
type PendingCustomJSON struct {
	Base
	FromAccount   string
	RequiredAuths []string
	JSONData      string
	ResendAttempt int
	Active        bool
	UniqueKey     string
	NoBroadcast   bool
	LastError     string
}

func (p *PendingCustomJSON) TrackedBase() *Base { return &p.Base }
