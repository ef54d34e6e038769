package migration

import (
	"testing"

	"github.com/glebarez/sqlite"
	orderdomain "github.com/smallbiznis/creditledger/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestEmbeddedSchemaHasFirstVersion(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	up, name, err := src.ReadUp(version)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "init", name)

	next, err := src.Next(version)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)
	down, name, err := src.ReadDown(next)
	require.NoError(t, err)
	defer down.Close()
	assert.Equal(t, "order_reward_due", name)
}

func TestApplyAutoMigratesSqlite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Apply(conn, false, zap.NewNop()))

	for _, table := range []string{"accounts", "packages", "orders", "consumption_records", "referral_rewards"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex("referral_rewards", "ux_referral_rewards_order_type"))
	assert.True(t, conn.Migrator().HasColumn(&orderdomain.Order{}, "reward_credits"))
	assert.True(t, conn.Migrator().HasColumn(&orderdomain.Order{}, "reward_referrer_id"))
}
