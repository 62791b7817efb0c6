package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/hive"
)

func TestAccountBalance_Hive(t *testing.T) {
	account := &hive.Account{HiveBalance: "123.456 HIVE", HBDBalance: "10.000 HBD"}

	amt, err := accountBalance(account, "HIVE")
	require.NoError(t, err)
	assert.Equal(t, "123.456", amt.Decimal())
}

func TestAccountBalance_HBD(t *testing.T) {
	account := &hive.Account{HiveBalance: "123.456 HIVE", HBDBalance: "10.000 HBD"}

	amt, err := accountBalance(account, "HBD")
	require.NoError(t, err)
	assert.Equal(t, "10.000", amt.Decimal())
}

func TestAccountBalance_UnsupportedCurrency(t *testing.T) {
	account := &hive.Account{}
	_, err := accountBalance(account, "SATS")
	assert.Error(t, err)
}

func TestParseAssetString_EmptyErrors(t *testing.T) {
	_, err := parseAssetString("", "HIVE")
	assert.Error(t, err)
}
