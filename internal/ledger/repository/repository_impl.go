package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/ledger/domain"
	orderdomain "github.com/smallbiznis/creditledger/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertConsumption(ctx context.Context, db *gorm.DB, record *domain.ConsumptionRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO consumption_records (id, account_id, order_id, is_free, original_file_id, processed_file_id, prompt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.AccountID,
		record.OrderID,
		record.IsFree,
		record.OriginalFileID,
		record.ProcessedFileID,
		record.Prompt,
		record.CreatedAt,
	).Error
}

func (r *repo) SumPaidCredits(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(p.credit_count), 0)
		 FROM orders o
		 JOIN packages p ON p.id = o.package_id
		 WHERE o.account_id = ? AND o.status = ?`,
		accountID,
		orderdomain.StatusPaid,
	).Scan(&total).Error
	return total, err
}

func (r *repo) CountPaidConsumptions(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM consumption_records WHERE account_id = ? AND is_free = ?`,
		accountID,
		false,
	).Scan(&count).Error
	return count, err
}

func (r *repo) Summary(ctx context.Context, db *gorm.DB) (domain.Summary, error) {
	var row struct {
		TotalAccounts     int64
		TotalConsumptions int64
		FreeConsumptions  int64
		PaidOrders        int64
		PendingOrders     int64
		Revenue           decimal.NullDecimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
		   (SELECT COUNT(*) FROM accounts) AS total_accounts,
		   (SELECT COUNT(*) FROM consumption_records) AS total_consumptions,
		   (SELECT COUNT(*) FROM consumption_records WHERE is_free = ?) AS free_consumptions,
		   (SELECT COUNT(*) FROM orders WHERE status = ?) AS paid_orders,
		   (SELECT COUNT(*) FROM orders WHERE status = ?) AS pending_orders,
		   (SELECT SUM(amount) FROM orders WHERE status = ?) AS revenue`,
		true,
		orderdomain.StatusPaid,
		orderdomain.StatusPending,
		orderdomain.StatusPaid,
	).Scan(&row).Error
	if err != nil {
		return domain.Summary{}, err
	}

	summary := domain.Summary{
		TotalAccounts:     row.TotalAccounts,
		TotalConsumptions: row.TotalConsumptions,
		FreeConsumptions:  row.FreeConsumptions,
		PaidOrders:        row.PaidOrders,
		PendingOrders:     row.PendingOrders,
		Revenue:           decimal.Zero,
	}
	if row.Revenue.Valid {
		summary.Revenue = row.Revenue.Decimal
	}
	return summary, nil
}

// UTMStats groups attributed accounts by campaign. Paid orders are summed per
// account first so buyers with several orders count once.
func (r *repo) UTMStats(ctx context.Context, db *gorm.DB) ([]domain.UTMStat, error) {
	var rows []struct {
		Source      string
		Medium      string
		Campaign    string
		Users       int64
		PayingUsers int64
		Revenue     decimal.NullDecimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT a.utm_source AS source, a.utm_medium AS medium, a.utm_campaign AS campaign,
		   COUNT(*) AS users,
		   COUNT(p.account_id) AS paying_users,
		   SUM(COALESCE(p.revenue, 0)) AS revenue
		 FROM accounts a
		 LEFT JOIN (
		   SELECT account_id, SUM(amount) AS revenue
		   FROM orders WHERE status = ? GROUP BY account_id
		 ) p ON p.account_id = a.id
		 WHERE a.utm_source <> ''
		 GROUP BY a.utm_source, a.utm_medium, a.utm_campaign
		 ORDER BY users DESC, a.utm_source, a.utm_medium, a.utm_campaign`,
		orderdomain.StatusPaid,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make([]domain.UTMStat, 0, len(rows))
	for _, row := range rows {
		stat := domain.UTMStat{
			Source:      row.Source,
			Medium:      row.Medium,
			Campaign:    row.Campaign,
			Users:       row.Users,
			PayingUsers: row.PayingUsers,
			Revenue:     decimal.Zero,
		}
		if row.Revenue.Valid {
			stat.Revenue = row.Revenue.Decimal
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

func (r *repo) Funnel(ctx context.Context, db *gorm.DB) (domain.Funnel, error) {
	var funnel domain.Funnel
	err := db.WithContext(ctx).Raw(
		`SELECT
		   (SELECT COUNT(*) FROM accounts WHERE utm_source <> '') AS starts,
		   (SELECT COUNT(DISTINCT c.account_id) FROM consumption_records c
		      JOIN accounts a ON a.id = c.account_id
		    WHERE a.utm_source <> '') AS first_uses,
		   (SELECT COUNT(DISTINCT o.account_id) FROM orders o
		      JOIN accounts a ON a.id = o.account_id
		    WHERE a.utm_source <> '' AND o.status = ?) AS purchases`,
		orderdomain.StatusPaid,
	).Scan(&funnel).Error
	return funnel, err
}
