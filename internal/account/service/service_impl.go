package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/revenue/internal/account/domain"
	"github.com/smallbiznis/revenue/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) ResolveOrCreate(ctx context.Context, db *gorm.DB, req domain.ResolveRequest) (domain.ServiceAccount, bool, error) {
	if db == nil {
		db = s.db
	}
	if req.UserID == 0 {
		return domain.ServiceAccount{}, false, domain.ErrInvalidUser
	}
	code := strings.ToUpper(strings.TrimSpace(req.ServiceCode))
	if code == "" || req.ServiceID == 0 {
		return domain.ServiceAccount{}, false, domain.ErrInvalidService
	}

	existing, err := s.repo.FindByUserAndCode(ctx, db, req.UserID, code)
	if err != nil {
		return domain.ServiceAccount{}, false, err
	}
	if existing != nil {
		if !usable(existing.Status) {
			return *existing, false, domain.ErrNotUsable
		}
		return *existing, false, nil
	}

	now := s.clock.Now()
	account := domain.ServiceAccount{
		ID:            s.genID.Generate(),
		UserID:        req.UserID,
		ServiceID:     req.ServiceID,
		ServiceCode:   code,
		AccountNumber: NewAccountNumber(code),
		Status:        domain.StatusActive,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&account)
	if res.Error != nil {
		return domain.ServiceAccount{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		// A concurrent request created it first.
		winner, err := s.repo.FindByUserAndCode(ctx, db, req.UserID, code)
		if err != nil {
			return domain.ServiceAccount{}, false, err
		}
		if winner == nil {
			return domain.ServiceAccount{}, false, fmt.Errorf("service account for %s vanished after conflict", code)
		}
		return *winner, false, nil
	}

	s.log.Info("service account created",
		zap.String("service_account_id", account.ID.String()),
		zap.String("service_code", code),
		zap.String("account_number", account.AccountNumber),
	)
	return account, true, nil
}

func (s *Service) RecordReading(ctx context.Context, db *gorm.DB, req domain.RecordReadingRequest) (domain.MeterReading, error) {
	if db == nil {
		db = s.db
	}
	if req.Reading < 0 {
		return domain.MeterReading{}, domain.ErrInvalidReading
	}
	account, err := s.repo.FindByID(ctx, db, req.AccountID)
	if err != nil {
		return domain.MeterReading{}, err
	}
	if account == nil {
		return domain.MeterReading{}, domain.ErrNotFound
	}

	previous, err := s.repo.LatestReading(ctx, db, req.AccountID)
	if err != nil {
		return domain.MeterReading{}, err
	}

	now := s.clock.Now()
	reading := domain.MeterReading{
		ID:               s.genID.Generate(),
		ServiceAccountID: req.AccountID,
		PaymentID:        req.PaymentID,
		CurrentReading:   req.Reading,
		Consumption:      req.Reading,
		ReadAt:           now,
		CreatedAt:        now,
	}
	if previous != nil {
		prev := previous.CurrentReading
		reading.PreviousReading = &prev
		reading.Consumption = req.Reading - prev
		if reading.Consumption < 0 {
			s.log.Warn("meter reading lower than previous",
				zap.String("service_account_id", req.AccountID.String()),
				zap.Int64("previous", prev),
				zap.Int64("current", req.Reading),
			)
		}
	}
	if err := s.repo.InsertReading(ctx, db, &reading); err != nil {
		return domain.MeterReading{}, err
	}

	metadata := cloneMetadata(account.Metadata)
	metadata[domain.MetadataLastReading] = req.Reading
	if err := s.repo.UpdateMetadata(ctx, db, account.ID, metadata); err != nil {
		return domain.MeterReading{}, err
	}
	return reading, nil
}

func (s *Service) TouchPayment(ctx context.Context, db *gorm.DB, accountID snowflake.ID, transactionID string) error {
	if db == nil {
		db = s.db
	}
	account, err := s.repo.FindByID(ctx, db, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return domain.ErrNotFound
	}
	metadata := cloneMetadata(account.Metadata)
	metadata[domain.MetadataLastPaymentAt] = s.clock.Now().Format("2006-01-02T15:04:05Z07:00")
	metadata[domain.MetadataLastPaymentID] = transactionID
	return s.repo.UpdateMetadata(ctx, db, accountID, metadata)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.ServiceAccount, error) {
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.ServiceAccount{}, err
	}
	if account == nil {
		return domain.ServiceAccount{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) FindForUser(ctx context.Context, userID snowflake.ID, code string) (*domain.ServiceAccount, error) {
	return s.repo.FindByUserAndCode(ctx, s.db, userID, strings.ToUpper(strings.TrimSpace(code)))
}

// NewAccountNumber returns "<CODE>-<ULID>".
func NewAccountNumber(code string) string {
	return code + "-" + ulid.Make().String()
}

func usable(status domain.Status) bool {
	return status == domain.StatusActive || status == domain.StatusPending
}

func cloneMetadata(in datatypes.JSONMap) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
