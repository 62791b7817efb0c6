package pipelines

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

func TestTargetCurrency(t *testing.T) {
	assert.Equal(t, money.MSATS, TargetCurrency("pay me #sats please"))
	assert.Equal(t, money.MSATS, TargetCurrency("#SATS"))
	assert.Equal(t, money.HBD, TargetCurrency("settle in #hbd"))
	assert.Equal(t, money.HIVE, TargetCurrency("no marker here"))
	assert.Equal(t, money.HIVE, TargetCurrency(""))
}

func TestPayWithSats(t *testing.T) {
	assert.True(t, PayWithSats("zap me #paywithsats now"))
	assert.False(t, PayWithSats("zap me now"))
}

func TestConvertKeepsats(t *testing.T) {
	assert.True(t, ConvertKeepsats("#convertKeepsats"))
	assert.False(t, ConvertKeepsats("#sats"))
}

func TestIsLightningAddress(t *testing.T) {
	assert.True(t, IsLightningAddress("alice@getalby.com"))
	assert.True(t, IsLightningAddress(" Bob@Wallet.example "))
	assert.False(t, IsLightningAddress("lnbc1p0xyz"))
	assert.False(t, IsLightningAddress("not an address"))
}

func TestExtractPaymentTarget(t *testing.T) {
	assert.Equal(t, "alice@getalby.com", extractPaymentTarget("alice@getalby.com #paywithsats"))
	assert.Equal(t, "lnbc1p0xyz", extractPaymentTarget("lightning:lnbc1p0xyz"))
	assert.Equal(t, "lnbc1p0xyz", extractPaymentTarget("#hbd lnbc1p0xyz"))
	assert.Equal(t, "", extractPaymentTarget("#sats #paywithsats"))
}

func TestStripLightningPrefix(t *testing.T) {
	assert.Equal(t, "lnbc1p0xyz", stripLightningPrefix("lightning:lnbc1p0xyz"))
	assert.Equal(t, "lnbc1p0xyz", stripLightningPrefix("LIGHTNING:lnbc1p0xyz"))
	assert.Equal(t, "lnbc1p0xyz", stripLightningPrefix("lnbc1p0xyz"))
}
