package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/dashboard/domain"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	billing *config.BillingConfigHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("dashboard.service"),
		clock:   p.Clock,
		billing: p.Billing,
	}
}

func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	currency := s.billing.Get().Currency
	totals := domain.Totals{Currency: currency}
	var recent []domain.Collection

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		revenue, err := s.totalRevenue(gctx, currency)
		if err != nil {
			return fmt.Errorf("total revenue: %w", err)
		}
		totals.TotalRevenue = revenue
		return nil
	})
	g.Go(func() error {
		return s.count(gctx, &totals.ActiveServices, "SELECT COUNT(*) FROM service_definitions WHERE is_active = ?", true)
	})
	g.Go(func() error {
		return s.count(gctx, &totals.ActiveAccounts, "SELECT COUNT(*) FROM service_accounts WHERE status = ?", "ACTIVE")
	})
	g.Go(func() error {
		return s.count(gctx, &totals.Transactions, "SELECT COUNT(*) FROM payments")
	})
	g.Go(func() error {
		return s.count(gctx, &totals.PendingPayments, "SELECT COUNT(*) FROM payments WHERE status = ?", string(paymentdomain.StatusPending))
	})
	g.Go(func() error {
		return s.count(gctx, &totals.FailedPayments, "SELECT COUNT(*) FROM payments WHERE status = ?", string(paymentdomain.StatusFailed))
	})
	g.Go(func() error {
		items, err := s.listCollections(gctx, collectionFilter{limit: domain.RecentCollectionsLimit})
		if err != nil {
			return fmt.Errorf("recent collections: %w", err)
		}
		recent = flatten(items, domain.RecentCollectionsLimit)
		return nil
	})

	if err := g.Wait(); err != nil {
		s.log.Error("dashboard summary failed", zap.Error(err))
		return domain.Summary{}, err
	}

	return domain.Summary{
		Totals:            totals,
		RecentCollections: recent,
		GeneratedAt:       s.clock.Now(),
	}, nil
}

func (s *Service) Collections(ctx context.Context, req domain.CollectionsRequest) (domain.CollectionsPage, error) {
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	switch paymentdomain.Status(status) {
	case "", paymentdomain.StatusPending, paymentdomain.StatusCompleted, paymentdomain.StatusFailed:
	default:
		return domain.CollectionsPage{}, domain.ErrInvalidStatus
	}

	filter := collectionFilter{
		status:      status,
		serviceCode: strings.ToUpper(strings.TrimSpace(req.ServiceCode)),
		limit:       req.Limit(),
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.CollectionsPage{}, domain.ErrInvalidPageToken
		}
		createdAt, id, ok := cursor.Position()
		if !ok {
			return domain.CollectionsPage{}, domain.ErrInvalidPageToken
		}
		filter.cursorAt = &createdAt
		filter.cursorID = snowflake.ID(id)
	}

	items, err := s.listCollections(ctx, filter)
	if err != nil {
		return domain.CollectionsPage{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, filter.limit, func(item *domain.Collection) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.PaymentID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	return domain.CollectionsPage{
		Collections: flatten(items, len(items)),
		PageInfo:    *pageInfo,
	}, nil
}

func (s *Service) totalRevenue(ctx context.Context, currency string) (decimal.Decimal, error) {
	var row struct {
		Total decimal.NullDecimal
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT SUM(total) AS total FROM payments WHERE status = ? AND currency = ?`,
		string(paymentdomain.StatusCompleted),
		currency,
	).Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal, nil
}

func (s *Service) count(ctx context.Context, dst *int64, query string, args ...any) error {
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(dst).Error; err != nil {
		return fmt.Errorf("count: %w", err)
	}
	return nil
}

type collectionFilter struct {
	status      string
	serviceCode string
	cursorAt    *time.Time
	cursorID    snowflake.ID
	limit       int
}

func (s *Service) listCollections(ctx context.Context, filter collectionFilter) ([]*domain.Collection, error) {
	var rows []*domain.Collection
	stmt := s.db.WithContext(ctx).
		Table("payments AS p").
		Select(`p.id AS payment_id, p.transaction_id,
			COALESCE(u.first_name, '') AS payer_first_name,
			COALESCE(u.last_name, '') AS payer_last_name,
			COALESCE(u.email, '') AS payer_email,
			p.service_code,
			COALESCE(sd.name, p.service_code) AS service_name,
			COALESCE(sa.account_number, '') AS account_number,
			p.total, p.currency, p.status, p.created_at`).
		Joins("LEFT JOIN users u ON u.id = p.user_id").
		Joins("LEFT JOIN service_accounts sa ON sa.id = p.service_account_id").
		Joins("LEFT JOIN service_definitions sd ON sd.code = p.service_code")

	if filter.status != "" {
		stmt = stmt.Where("p.status = ?", filter.status)
	}
	if filter.serviceCode != "" {
		stmt = stmt.Where("p.service_code = ?", filter.serviceCode)
	}
	if filter.cursorAt != nil {
		stmt = stmt.Where("(p.created_at < ? OR (p.created_at = ? AND p.id < ?))",
			*filter.cursorAt, *filter.cursorAt, filter.cursorID)
	}

	stmt = stmt.Order("p.created_at DESC, p.id DESC").Limit(filter.limit + 1)
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func flatten(items []*domain.Collection, limit int) []domain.Collection {
	out := make([]domain.Collection, 0, len(items))
	for _, item := range items {
		if item == nil || len(out) >= limit {
			continue
		}
		c := *item
		c.PayerName = strings.TrimSpace(c.FirstName + " " + c.LastName)
		out = append(out, c)
	}
	return out
}
