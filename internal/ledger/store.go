package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// entryDoc is the BSON persistence shape for Entry, split into nested
// documents for debit/credit account and conversion so Mongo's composite
// indexes on (debit.name, debit.sub) can be built directly.
type entryDoc struct {
	GroupID      string       `bson:"group_id"`
	ShortID      string       `bson:"short_id"`
	CustID       string       `bson:"cust_id"`
	OpType       string       `bson:"op_type"`
	LedgerType   string       `bson:"ledger_type"`
	Timestamp    time.Time    `bson:"timestamp"`
	Description  string       `bson:"description"`
	UserMemo     string       `bson:"user_memo"`
	Link         string       `bson:"link"`
	Debit        accountDoc   `bson:"debit"`
	Credit       accountDoc   `bson:"credit"`
	DebitUnit    string       `bson:"debit_unit"`
	DebitAmount  string       `bson:"debit_amount"`
	DebitConv    conversionDoc `bson:"debit_conv"`
	CreditUnit   string       `bson:"credit_unit"`
	CreditAmount string       `bson:"credit_amount"`
	CreditConv   conversionDoc `bson:"credit_conv"`
}

type accountDoc struct {
	Type   string `bson:"account_type"`
	Name   string `bson:"name"`
	Sub    string `bson:"sub"`
	Contra bool   `bson:"contra"`
}

type conversionDoc struct {
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

func toEntryDoc(e Entry) entryDoc {
	return entryDoc{
		GroupID:      e.GroupID,
		ShortID:      e.ShortID,
		CustID:       e.CustID,
		OpType:       e.OpType,
		LedgerType:   string(e.LedgerType),
		Timestamp:    e.Timestamp,
		Description:  e.Description,
		UserMemo:     e.UserMemo,
		Link:         e.Link,
		Debit:        toAccountDoc(e.Debit),
		Credit:       toAccountDoc(e.Credit),
		DebitUnit:    string(e.DebitUnit),
		DebitAmount:  e.DebitAmount.Decimal(),
		DebitConv:    toConversionDoc(e.DebitConv),
		CreditUnit:   string(e.CreditUnit),
		CreditAmount: e.CreditAmount.Decimal(),
		CreditConv:   toConversionDoc(e.CreditConv),
	}
}

func toAccountDoc(a Account) accountDoc {
	return accountDoc{Type: string(a.Type), Name: a.Name, Sub: a.Sub, Contra: a.Contra}
}

func toConversionDoc(c money.Conversion) conversionDoc {
	return conversionDoc{
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

// ErrNotFound is returned when a query finds no matching entries.
var ErrNotFound = errors.New("ledger: not found")

// Store is the Mongo-backed persistence contract for LedgerEntry: an
// append-only collection indexed by group_id (unique), cust_id,
// timestamp, ledger_type, and the debit/credit (name, sub) composites.
type Store struct {
	coll *mongo.Collection
}

// NewStore wraps the ledger collection.
func NewStore(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// Save upserts entry by group_id, making the write idempotent per
// spec §3.5's "re-save is idempotent" invariant.
func (s *Store) Save(ctx context.Context, entry Entry) error {
	doc := toEntryDoc(entry)
	filter := bson.M{"group_id": entry.GroupID}
	update := bson.M{"$set": doc}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ledger: save entry %s: %w", entry.GroupID, err)
	}
	return nil
}

// Filter is the composite query spec §4.D names: account name+sub on
// either side, cust_id, ledger_type, group_id, short_id, and a time range.
// Zero-value fields are not applied as constraints.
type Filter struct {
	AccountName   string
	AccountSub    string
	CustID        string
	LedgerType    LedgerType
	GroupID       string
	ShortID       string
	From          time.Time
	To            time.Time
}

// FindEntries returns entries matching f, sorted by timestamp ascending.
func (s *Store) FindEntries(ctx context.Context, f Filter) ([]Entry, error) {
	filter := bson.M{}
	if f.GroupID != "" {
		filter["group_id"] = f.GroupID
	}
	if f.ShortID != "" {
		filter["short_id"] = f.ShortID
	}
	if f.CustID != "" {
		filter["cust_id"] = f.CustID
	}
	if f.LedgerType != "" {
		filter["ledger_type"] = string(f.LedgerType)
	}
	if f.AccountName != "" {
		nameSub := bson.M{"name": f.AccountName}
		if f.AccountSub != "" {
			nameSub["sub"] = f.AccountSub
		}
		filter["$or"] = []bson.M{
			{"debit": nameSub},
			{"credit": nameSub},
		}
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		tsFilter := bson.M{}
		if !f.From.IsZero() {
			tsFilter["$gte"] = f.From
		}
		if !f.To.IsZero() {
			tsFilter["$lte"] = f.To
		}
		filter["timestamp"] = tsFilter
	}

	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("ledger: find_entries: %w", err)
	}
	defer cur.Close(ctx)

	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("ledger: decode entries: %w", err)
	}

	out := make([]Entry, 0, len(docs))
	for _, d := range docs {
		e, err := fromEntryDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func fromEntryDoc(d entryDoc) (Entry, error) {
	debitAmt, err := money.Of(money.Currency(d.DebitUnit), d.DebitAmount)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: decode debit_amount: %w", err)
	}
	creditAmt, err := money.Of(money.Currency(d.CreditUnit), d.CreditAmount)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: decode credit_amount: %w", err)
	}
	debitConv, err := fromConversionDoc(d.DebitConv)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: decode debit_conv: %w", err)
	}
	creditConv, err := fromConversionDoc(d.CreditConv)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: decode credit_conv: %w", err)
	}

	return Entry{
		GroupID:      d.GroupID,
		ShortID:      d.ShortID,
		CustID:       d.CustID,
		OpType:       d.OpType,
		LedgerType:   LedgerType(d.LedgerType),
		Timestamp:    d.Timestamp,
		Description:  d.Description,
		UserMemo:     d.UserMemo,
		Link:         d.Link,
		Debit:        fromAccountDoc(d.Debit),
		Credit:       fromAccountDoc(d.Credit),
		DebitUnit:    money.Currency(d.DebitUnit),
		DebitAmount:  debitAmt,
		DebitConv:    debitConv,
		CreditUnit:   money.Currency(d.CreditUnit),
		CreditAmount: creditAmt,
		CreditConv:   creditConv,
	}, nil
}

func fromConversionDoc(d conversionDoc) (money.Conversion, error) {
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
		ConvFrom:  money.Currency(d.ConvFrom),
		Value:     value,
		Hive:      hive,
		HBD:       hbd,
		USD:       usd,
		Sats:      sats,
		Msats:     msats,
		SatsHive:  money.Rate(d.SatsHive),
		FetchDate: d.FetchDate,
	}, nil
}

func fromAccountDoc(d accountDoc) Account {
	return Account{Type: AccountType(d.Type), Name: d.Name, Sub: d.Sub, Contra: d.Contra}
}
