package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/revenue/internal/account/domain"
	"github.com/smallbiznis/revenue/internal/history/domain"
	"github.com/smallbiznis/revenue/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	accountRepo accountdomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("history.service"),
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
	}
}

func (s *Service) LastPayment(ctx context.Context, userID snowflake.ID, serviceCode string) (domain.LastPayment, error) {
	var out domain.LastPayment
	code := strings.ToUpper(strings.TrimSpace(serviceCode))
	if userID == 0 || code == "" {
		return out, nil
	}

	account, err := s.accountRepo.FindByUserAndCode(ctx, s.db, userID, code)
	if err != nil || account == nil {
		return out, err
	}
	out.ServiceAccount = account

	payment, err := s.repo.LatestPayment(ctx, s.db, account.ID)
	if err != nil || payment == nil {
		return out, err
	}
	out.Payment = payment

	reading, err := s.accountRepo.FindReadingByPayment(ctx, s.db, payment.ID)
	if err != nil {
		return out, err
	}
	out.Reading = reading
	return out, nil
}

func (s *Service) BillingHistory(ctx context.Context, userID snowflake.ID, filter domain.Filter) (domain.Page, error) {
	var cursor *domain.Cursor
	if strings.TrimSpace(filter.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(filter.PageToken)
		if err != nil {
			return domain.Page{}, domain.ErrInvalidPageToken
		}
		createdAt, id, ok := decoded.Position()
		if !ok {
			return domain.Page{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: snowflake.ID(id), CreatedAt: createdAt}
	}

	pageSize := filter.Limit()
	items, err := s.repo.ListEntries(ctx, s.db, domain.ListFilter{
		UserID:      userID,
		ServiceCode: filter.ServiceCode,
		Cursor:      cursor,
		Limit:       pageSize,
	})
	if err != nil {
		return domain.Page{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Entry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.PaymentID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			s.log.Warn("encode history cursor", zap.Error(err))
			return ""
		}
		return token
	})

	entries := make([]domain.Entry, 0, len(items))
	for _, item := range items {
		if item != nil {
			entries = append(entries, *item)
		}
	}
	return domain.Page{Entries: entries, PageInfo: *pageInfo}, nil
}
