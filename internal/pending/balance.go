package pending

import (
	"fmt"
	"strings"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/hive"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// accountBalance reads account's balance for currency, parsing Hive's
// "123.456 HIVE" asset-string form (the same decimal-amount-plus-symbol
// shape internal/hive/sign.go's serializeAsset encodes on the wire).
func accountBalance(account *hive.Account, currency money.Currency) (money.Amount, error) {
	switch currency {
	case "HIVE":
		return parseAssetString(account.HiveBalance, currency)
	case "HBD":
		return parseAssetString(account.HBDBalance, currency)
	default:
		return money.Amount{}, fmt.Errorf("pending: unsupported currency %q for balance check", currency)
	}
}

func parseAssetString(s string, currency money.Currency) (money.Amount, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return money.Amount{}, fmt.Errorf("pending: empty balance string for %s", currency)
	}
	return money.Of(currency, fields[0])
}
