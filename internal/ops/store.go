package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// ErrNotFound is returned when Load finds no document for a group_id.
var ErrNotFound = errors.New("ops: not found")

// ErrUnknownOpType is returned when a stored op_type has no registered
// decoder — a forward-compatibility guard against documents written by a
// newer version of the bridge.
var ErrUnknownOpType = errors.New("ops: unknown op_type")

// convDoc mirrors ledger's conversion persistence shape; duplicated
// rather than imported so the ops and ledger packages stay independent
// (ops is loaded by the Hive/LND ingest before any ledger entry exists
// for it).
type convDoc struct {
	ConvFrom  string    `bson:"conv_from"`
	Value     string    `bson:"value"`
	Hive      string    `bson:"hive"`
	HBD       string    `bson:"hbd"`
	USD       string    `bson:"usd"`
	Sats      string    `bson:"sats"`
	Msats     string    `bson:"msats"`
	SatsHive  float64   `bson:"sats_hive"`
	FetchDate time.Time `bson:"fetch_date"`
}

func toConvDoc(c money.Conversion) convDoc {
	return convDoc{
		ConvFrom:  string(c.ConvFrom),
		Value:     c.Value.Decimal(),
		Hive:      c.Hive.Decimal(),
		HBD:       c.HBD.Decimal(),
		USD:       c.USD.Decimal(),
		Sats:      c.Sats.Decimal(),
		Msats:     c.Msats.Decimal(),
		SatsHive:  float64(c.SatsHive),
		FetchDate: c.FetchDate,
	}
}

func fromConvDoc(d convDoc) (money.Conversion, error) {
	if d.ConvFrom == "" {
		return money.Conversion{}, nil
	}
	hive, err := money.Of(money.HIVE, d.Hive)
	if err != nil {
		return money.Conversion{}, err
	}
	hbd, err := money.Of(money.HBD, d.HBD)
	if err != nil {
		return money.Conversion{}, err
	}
	usd, err := money.Of(money.USD, d.USD)
	if err != nil {
		return money.Conversion{}, err
	}
	sats, err := money.Of(money.SATS, d.Sats)
	if err != nil {
		return money.Conversion{}, err
	}
	msats, err := money.Of(money.MSATS, d.Msats)
	if err != nil {
		return money.Conversion{}, err
	}
	value, err := money.Of(money.Currency(d.ConvFrom), d.Value)
	if err != nil {
		return money.Conversion{}, err
	}
	return money.Conversion{
		ConvFrom: money.Currency(d.ConvFrom), Value: value,
		Hive: hive, HBD: hbd, USD: usd, Sats: sats, Msats: msats,
		SatsHive: money.Rate(d.SatsHive), FetchDate: d.FetchDate,
	}, nil
}

func replyDocs(rs []Reply) []bson.M {
	out := make([]bson.M, 0, len(rs))
	for _, r := range rs {
		out = append(out, bson.M{
			"reply_id": r.ReplyID, "reply_type": string(r.ReplyType),
			"reply_msat": r.ReplyMsat, "reply_error": r.ReplyError, "reply_message": r.ReplyMessage,
		})
	}
	return out
}

func fromReplyDocs(raw []bson.M) []Reply {
	out := make([]Reply, 0, len(raw))
	for _, r := range raw {
		out = append(out, Reply{
			ReplyID:      stringField(r, "reply_id"),
			ReplyType:    ReplyType(stringField(r, "reply_type")),
			ReplyMsat:    int64Field(r, "reply_msat"),
			ReplyError:   stringField(r, "reply_error"),
			ReplyMessage: stringField(r, "reply_message"),
		})
	}
	return out
}

func stringField(m bson.M, k string) string {
	s, _ := m[k].(string)
	return s
}

func int64Field(m bson.M, k string) int64 {
	switch v := m[k].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// opDoc is the wide polymorphic BSON document: common fields plus one
// payload map keyed by the variant's own field names, decoded based on
// op_type.
type opDoc struct {
	GroupID   string   `bson:"group_id"`
	ShortID   string   `bson:"short_id"`
	OpType    string   `bson:"op_type"`
	Timestamp time.Time `bson:"timestamp"`
	CustID    string   `bson:"cust_id"`
	Conv      convDoc  `bson:"conv"`
	Replies   []bson.M `bson:"replies"`
	Payload   bson.M   `bson:"payload"`
}

func amountField(m bson.M, currencyKey, amountKey string) (money.Amount, error) {
	cur, _ := m[currencyKey].(string)
	val, _ := m[amountKey].(string)
	if cur == "" {
		return money.Amount{}, nil
	}
	return money.Of(money.Currency(cur), val)
}

func toOpDoc(op TrackedOperation) (opDoc, error) {
	b := op.TrackedBase()
	doc := opDoc{
		GroupID: b.GroupID, ShortID: b.ShortID, OpType: string(b.OpType),
		Timestamp: b.Timestamp, CustID: b.CustID,
		Conv: toConvDoc(b.Conv), Replies: replyDocs(b.Replies),
	}

	switch v := op.(type) {
	case *Transfer:
		doc.Payload = bson.M{
			"from": v.From, "to": v.To, "unit": string(v.Unit), "amount": v.Amount.Decimal(),
			"memo": v.Memo, "trx_id": v.TrxID, "block": v.Block,
		}
	case *RecurrentTransfer:
		doc.Payload = bson.M{
			"from": v.From, "to": v.To, "unit": string(v.Unit), "amount": v.Amount.Decimal(),
			"memo": v.Memo, "recurrence_hours": v.RecurrenceHours, "execution_count": v.ExecutionCount,
		}
	case *FillRecurrentTransfer:
		doc.Payload = bson.M{
			"from": v.From, "to": v.To, "unit": string(v.Unit), "amount": v.Amount.Decimal(), "memo": v.Memo,
		}
	case *CustomJSON:
		doc.Payload = bson.M{
			"required_auths": v.RequiredAuths, "required_posting_auths": v.RequiredPostingAuths,
			"id": v.ID, "json": v.JSON,
		}
	case *LimitOrderCreate:
		doc.Payload = bson.M{
			"owner": v.Owner, "order_id": v.OrderID,
			"amount_to_sell_unit": string(v.AmountToSell.Currency), "amount_to_sell": v.AmountToSell.Decimal(),
			"min_to_receive_unit": string(v.MinToReceive.Currency), "min_to_receive": v.MinToReceive.Decimal(),
			"fill_or_kill": v.FillOrKill, "expiration": v.Expiration,
		}
	case *FillOrder:
		doc.Payload = bson.M{
			"current_owner": v.CurrentOwner, "current_order_id": v.CurrentOrderID,
			"current_pays_unit": string(v.CurrentPays.Currency), "current_pays": v.CurrentPays.Decimal(),
			"open_owner": v.OpenOwner, "open_order_id": v.OpenOrderID,
			"open_pays_unit": string(v.OpenPays.Currency), "open_pays": v.OpenPays.Decimal(),
		}
	case *Invoice:
		doc.Payload = bson.M{
			"payment_hash": v.PaymentHash, "payment_addr": v.PaymentAddr, "value_msat": v.ValueMsat,
			"memo": v.Memo, "state": v.State, "settle_index": v.SettleIndex, "add_index": v.AddIndex,
		}
	case *Payment:
		doc.Payload = bson.M{
			"payment_hash": v.PaymentHash, "value_msat": v.ValueMsat, "fee_msat": v.FeeMsat,
			"status": v.Status, "destination": v.Destination,
		}
	case *PendingTransaction:
		doc.Payload = bson.M{
			"from_account": v.FromAccount, "to_account": v.ToAccount,
			"unit": string(v.Unit), "amount": v.Amount.Decimal(), "memo": v.Memo,
			"resend_attempt": v.ResendAttempt, "active": v.Active,
			"unique_key": v.UniqueKey, "nobroadcast": v.NoBroadcast, "last_error": v.LastError,
		}
	case *PendingCustomJSON:
		doc.Payload = bson.M{
			"from_account": v.FromAccount, "required_auths": v.RequiredAuths, "json_data": v.JSONData,
			"resend_attempt": v.ResendAttempt, "active": v.Active,
			"unique_key": v.UniqueKey, "nobroadcast": v.NoBroadcast, "last_error": v.LastError,
		}
	default:
		return opDoc{}, fmt.Errorf("ops: %w: %T", ErrUnknownOpType, op)
	}
	return doc, nil
}

func fromOpDoc(d opDoc) (TrackedOperation, error) {
	conv, err := fromConvDoc(d.Conv)
	if err != nil {
		return nil, err
	}
	base := Base{
		GroupID: d.GroupID, ShortID: d.ShortID, OpType: OpType(d.OpType),
		Timestamp: d.Timestamp, CustID: d.CustID, Conv: conv, Replies: fromReplyDocs(d.Replies),
	}
	p := d.Payload

	switch OpType(d.OpType) {
	case OpTransfer:
		amt, err := amountField(p, "unit", "amount")
		if err != nil {
			return nil, err
		}
		return &Transfer{
			Base: base, From: stringField(p, "from"), To: stringField(p, "to"),
			Unit: money.Currency(stringField(p, "unit")), Amount: amt,
			Memo: stringField(p, "memo"), TrxID: stringField(p, "trx_id"), Block: int64Field(p, "block"),
		}, nil
	case OpRecurrentTransfer:
		amt, err := amountField(p, "unit", "amount")
		if err != nil {
			return nil, err
		}
		return &RecurrentTransfer{
			Base: base, From: stringField(p, "from"), To: stringField(p, "to"),
			Unit: money.Currency(stringField(p, "unit")), Amount: amt, Memo: stringField(p, "memo"),
			RecurrenceHours: int(int64Field(p, "recurrence_hours")), ExecutionCount: int(int64Field(p, "execution_count")),
		}, nil
	case OpFillRecurrentTransfer:
		amt, err := amountField(p, "unit", "amount")
		if err != nil {
			return nil, err
		}
		return &FillRecurrentTransfer{
			Base: base, From: stringField(p, "from"), To: stringField(p, "to"),
			Unit: money.Currency(stringField(p, "unit")), Amount: amt, Memo: stringField(p, "memo"),
		}, nil
	case OpCustomJSON:
		return &CustomJSON{
			Base: base, RequiredAuths: stringSliceField(p, "required_auths"),
			RequiredPostingAuths: stringSliceField(p, "required_posting_auths"),
			ID:                   stringField(p, "id"), JSON: stringField(p, "json"),
		}, nil
	case OpLimitOrderCreate:
		sell, err := amountField(p, "amount_to_sell_unit", "amount_to_sell")
		if err != nil {
			return nil, err
		}
		recv, err := amountField(p, "min_to_receive_unit", "min_to_receive")
		if err != nil {
			return nil, err
		}
		expiry := timeField(p, "expiration")
		return &LimitOrderCreate{
			Base: base, Owner: stringField(p, "owner"), OrderID: uint32(int64Field(p, "order_id")),
			AmountToSell: sell, MinToReceive: recv, FillOrKill: boolField(p, "fill_or_kill"), Expiration: expiry,
		}, nil
	case OpFillOrder:
		curPays, err := amountField(p, "current_pays_unit", "current_pays")
		if err != nil {
			return nil, err
		}
		openPays, err := amountField(p, "open_pays_unit", "open_pays")
		if err != nil {
			return nil, err
		}
		return &FillOrder{
			Base: base, CurrentOwner: stringField(p, "current_owner"), CurrentOrderID: uint32(int64Field(p, "current_order_id")),
			CurrentPays: curPays, OpenOwner: stringField(p, "open_owner"), OpenOrderID: uint32(int64Field(p, "open_order_id")),
			OpenPays: openPays,
		}, nil
	case OpInvoice:
		return &Invoice{
			Base: base, PaymentHash: stringField(p, "payment_hash"), PaymentAddr: stringField(p, "payment_addr"),
			ValueMsat: int64Field(p, "value_msat"), Memo: stringField(p, "memo"), State: stringField(p, "state"),
			SettleIndex: uint64(int64Field(p, "settle_index")), AddIndex: uint64(int64Field(p, "add_index")),
		}, nil
	case OpPayment:
		return &Payment{
			Base: base, PaymentHash: stringField(p, "payment_hash"), ValueMsat: int64Field(p, "value_msat"),
			FeeMsat: int64Field(p, "fee_msat"), Status: stringField(p, "status"), Destination: stringField(p, "destination"),
		}, nil
	case OpPendingTransaction:
		amt, err := amountField(p, "unit", "amount")
		if err != nil {
			return nil, err
		}
		return &PendingTransaction{
			Base: base, FromAccount: stringField(p, "from_account"), ToAccount: stringField(p, "to_account"),
			Unit: money.Currency(stringField(p, "unit")), Amount: amt, Memo: stringField(p, "memo"),
			ResendAttempt: int(int64Field(p, "resend_attempt")), Active: boolField(p, "active"),
			UniqueKey: stringField(p, "unique_key"), NoBroadcast: boolField(p, "nobroadcast"),
			LastError: stringField(p, "last_error"),
		}, nil
	case OpPendingCustomJSON:
		return &PendingCustomJSON{
			Base: base, FromAccount: stringField(p, "from_account"),
			RequiredAuths: stringSliceField(p, "required_auths"), JSONData: stringField(p, "json_data"),
			ResendAttempt: int(int64Field(p, "resend_attempt")), Active: boolField(p, "active"),
			UniqueKey: stringField(p, "unique_key"), NoBroadcast: boolField(p, "nobroadcast"),
			LastError: stringField(p, "last_error"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOpType, d.OpType)
	}
}

func stringSliceField(m bson.M, k string) []string {
	raw, ok := m[k].(bson.A)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func boolField(m bson.M, k string) bool {
	b, _ := m[k].(bool)
	return b
}

// timeField handles both the time.Time a Go caller put into a bson.M
// before round-tripping through the driver, and the primitive.DateTime
// the driver hands back when decoding that same value out of Mongo.
func timeField(m bson.M, k string) time.Time {
	switch v := m[k].(type) {
	case time.Time:
		return v
	case primitive.DateTime:
		return v.Time()
	default:
		return time.Time{}
	}
}

// Store is the Mongo-backed ops collection: append-on-create,
// upsert-on-save, polymorphic decode by op_type.
type Store struct {
	coll *mongo.Collection
}

// NewStore wraps the ops collection.
func NewStore(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// Save upserts op by group_id (idempotent, per spec §4.F).
func (s *Store) Save(ctx context.Context, op TrackedOperation) error {
	doc, err := toOpDoc(op)
	if err != nil {
		return err
	}
	filter := bson.M{"group_id": doc.GroupID}
	_, err = s.coll.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ops: save %s: %w", doc.GroupID, err)
	}
	return nil
}

// Load fetches and decodes the operation stored under group_id,
// dispatching on its op_type discriminator.
func (s *Store) Load(ctx context.Context, groupID string) (TrackedOperation, error) {
	var doc opDoc
	err := s.coll.FindOne(ctx, bson.M{"group_id": groupID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ops: load %s: %w", groupID, err)
	}
	return fromOpDoc(doc)
}

// LoadByShortID is Load's memo-facing counterpart: pipelines decode a
// short_id out of a Hive transfer memo and need the originating op.
func (s *Store) LoadByShortID(ctx context.Context, shortID string) (TrackedOperation, error) {
	var doc opDoc
	err := s.coll.FindOne(ctx, bson.M{"short_id": shortID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ops: load_by_short_id %s: %w", shortID, err)
	}
	return fromOpDoc(doc)
}

// ListByOpType returns every stored operation of the given op_type, in
// insertion order. Used by internal/pending's resender loop to list
// pending transactions/custom_jsons in enqueue order (spec §4.K).
func (s *Store) ListByOpType(ctx context.Context, opType OpType) ([]TrackedOperation, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"op_type": string(opType)}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("ops: list_by_op_type %s: %w", opType, err)
	}
	defer cursor.Close(ctx)

	var out []TrackedOperation
	for cursor.Next(ctx) {
		var doc opDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("ops: list_by_op_type %s: decode: %w", opType, err)
		}
		op, err := fromOpDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("ops: list_by_op_type %s: cursor: %w", opType, err)
	}
	return out, nil
}

// Delete removes the operation stored under groupID. Used by
// internal/pending once a pending transaction/custom_json has broadcast
// successfully and no longer needs retrying.
func (s *Store) Delete(ctx context.Context, groupID string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return fmt.Errorf("ops: delete %s: %w", groupID, err)
	}
	return nil
}

// QuoteFunc resolves the nearest price quote to t — satisfied by
// oracle.Cache.NearestQuote, injected rather than imported directly so
// ops doesn't depend on the oracle package.
type QuoteFunc func(ctx context.Context, t time.Time) (money.Quote, error)

// UpdateConv sets op's Conv field, either from an explicit quote or (if
// quote is nil) from nearest(op's timestamp), then persists the change.
func (s *Store) UpdateConv(ctx context.Context, op TrackedOperation, principal money.Amount, quote *money.Quote, nearest QuoteFunc) error {
	b := op.TrackedBase()
	var q money.Quote
	if quote != nil {
		q = *quote
	} else {
		if nearest == nil {
			return fmt.Errorf("ops: update_conv requires an explicit quote or a nearest-quote resolver")
		}
		var err error
		q, err = nearest(ctx, b.Timestamp)
		if err != nil {
			return fmt.Errorf("ops: update_conv: %w", err)
		}
	}
	conv, err := money.Convert(principal, q)
	if err != nil {
		return fmt.Errorf("ops: update_conv: %w", err)
	}
	b.Conv = conv
	return s.Save(ctx, op)
}
