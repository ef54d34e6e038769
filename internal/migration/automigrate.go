package migration

import (
	accountdomain "github.com/smallbiznis/creditledger/internal/account/domain"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	orderdomain "github.com/smallbiznis/creditledger/internal/order/domain"
	referraldomain "github.com/smallbiznis/creditledger/internal/referral/domain"
	"gorm.io/gorm"
)

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&accountdomain.Account{},
		&catalogdomain.Package{},
		&orderdomain.Order{},
		&ledgerdomain.ConsumptionRecord{},
		&referraldomain.ReferralReward{},
	}
}

// AutoMigrate builds the schema from the gorm models. Used for sqlite and
// mysql, which the embedded SQL does not target.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
