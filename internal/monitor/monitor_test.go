package monitor

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
)

func TestBuildPipeline_OpTypeFilterIncluded(t *testing.T) {
	pipeline := buildPipeline(Target{Name: "payments", OpTypeFilter: ops.OpPayment})
	require.Len(t, pipeline, 1)

	matchStage := pipeline[0]
	require.Len(t, matchStage, 1)
	assert.Equal(t, "$match", matchStage[0].Key)

	matchDoc, ok := matchStage[0].Value.(bson.D)
	require.True(t, ok)
	andConds, ok := matchDoc[0].Value.(bson.A)
	require.True(t, ok)

	found := false
	for _, cond := range andConds {
		d, ok := cond.(bson.D)
		if !ok {
			continue
		}
		for _, elem := range d {
			if elem.Key == "fullDocument.op_type" {
				assert.Equal(t, "payment", elem.Value)
				found = true
			}
		}
	}
	assert.True(t, found, "expected an op_type match condition")
}

func TestBuildPipeline_NoOpTypeFilterOmitsCondition(t *testing.T) {
	pipeline := buildPipeline(Target{Name: "ledger"})
	matchDoc := pipeline[0][0].Value.(bson.D)
	andConds := matchDoc[0].Value.(bson.A)

	for _, cond := range andConds {
		d, ok := cond.(bson.D)
		if !ok {
			continue
		}
		for _, elem := range d {
			assert.NotEqual(t, "fullDocument.op_type", elem.Key)
		}
	}
}

func TestIgnoredFieldsOnlyCond_LetsNonUpdatesThrough(t *testing.T) {
	cond := ignoredFieldsOnlyCond([]string{"locked"})
	orConds, ok := cond[0].Value.(bson.A)
	require.True(t, ok)
	require.Len(t, orConds, 2)

	nonUpdateCond, ok := orConds[0].(bson.D)
	require.True(t, ok)
	assert.Equal(t, "operationType", nonUpdateCond[0].Key)
}

func TestHasGroupID(t *testing.T) {
	assert.True(t, hasGroupID(bson.M{"group_id": "100-abc-0"}))
	assert.False(t, hasGroupID(bson.M{"group_id": ""}))
	assert.False(t, hasGroupID(bson.M{}))
}

func TestInvoiceSettled(t *testing.T) {
	assert.True(t, invoiceSettled(bson.M{"payload": bson.M{"state": "SETTLED"}}))
	assert.False(t, invoiceSettled(bson.M{"payload": bson.M{"state": "OPEN"}}))
	assert.False(t, invoiceSettled(bson.M{}))
}

func TestDefaultTargets_NamesAndFilters(t *testing.T) {
	targets := DefaultTargets(nil, nil, nil)
	require.Len(t, targets, 5)

	byName := map[string]Target{}
	for _, target := range targets {
		byName[target.Name] = target
	}

	assert.Equal(t, ops.OpPayment, byName["payments"].OpTypeFilter)
	assert.Equal(t, ops.OpInvoice, byName["invoices"].OpTypeFilter)
	assert.Empty(t, byName["ledger"].OpTypeFilter)
	assert.Empty(t, byName["rates_ts"].OpTypeFilter)
	assert.True(t, byName["rates_ts"].Correlate(bson.M{}))
}

func TestResumeKey(t *testing.T) {
	m := New("")
	assert.Equal(t, "monitor:resume:payments", m.resumeKey("payments"))

	m2 := New("custom:prefix")
	assert.Equal(t, "custom:prefix:payments", m2.resumeKey("payments"))
}
