package monitor

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
)

// Target describes one watched collection (spec §4.I): which Mongo
// collection to open a change stream on, which bookkeeping fields to
// ignore when an update touches only those, and which correlation
// condition a document's fullDocument must satisfy to be dispatched.
//
// Source stores "payments", "invoices" and "hive_ops" as one physical
// collection (internal/ops's polymorphic ops collection, discriminated
// by op_type) rather than three — OpTypeFilter narrows a Target to the
// logical collection spec §4.I names.
type Target struct {
	Name          string
	Collection    *mongo.Collection
	OpTypeFilter  ops.OpType // empty means "no op_type narrowing" (ledger, rates_ts)
	IgnoredFields []string
	Correlate     func(fullDocument bson.M) bool
}

// hasGroupID is the payments/hive_ops correlation condition: the
// document must carry a non-empty group_id, the stable correlation key
// spec §3.6 defines.
func hasGroupID(fullDocument bson.M) bool {
	groupID, _ := fullDocument["group_id"].(string)
	return groupID != ""
}

// invoiceSettled is the invoices correlation condition: only dispatch
// once LND has reported the invoice SETTLED (spec §4.I), not on its
// initial open-invoice insert.
func invoiceSettled(fullDocument bson.M) bool {
	payload, _ := fullDocument["payload"].(bson.M)
	if payload == nil {
		return false
	}
	state, _ := payload["state"].(string)
	return state == "SETTLED"
}

// DefaultTargets builds the spec §4.I watch list: payments, invoices,
// hive_ops (all views of the ops collection filtered by op_type), plus
// ledger and rates_ts.
func DefaultTargets(opsColl, ledgerColl, ratesTSColl *mongo.Collection) []Target {
	ignoreLocked := []string{"locked"}
	return []Target{
		{
			Name:          "payments",
			Collection:    opsColl,
			OpTypeFilter:  ops.OpPayment,
			IgnoredFields: ignoreLocked,
			Correlate:     hasGroupID,
		},
		{
			Name:          "invoices",
			Collection:    opsColl,
			OpTypeFilter:  ops.OpInvoice,
			IgnoredFields: ignoreLocked,
			Correlate:     invoiceSettled,
		},
		{
			Name:          "hive_ops",
			Collection:    opsColl,
			OpTypeFilter:  ops.OpTransfer,
			IgnoredFields: ignoreLocked,
			Correlate:     hasGroupID,
		},
		{
			Name:          "ledger",
			Collection:    ledgerColl,
			IgnoredFields: ignoreLocked,
			Correlate:     hasGroupID,
		},
		{
			Name:          "rates_ts",
			Collection:    ratesTSColl,
			IgnoredFields: nil,
			Correlate:     func(bson.M) bool { return true },
		},
	}
}
