package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/revenue/internal/audit/domain"
	"github.com/smallbiznis/revenue/internal/cache"
	"github.com/smallbiznis/revenue/internal/catalog/domain"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/tariff"
	pkgdb "github.com/smallbiznis/revenue/pkg/db"
	"github.com/smallbiznis/revenue/pkg/db/option"
	"github.com/smallbiznis/revenue/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const codeCacheTTL = 5 * time.Minute

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Store    repository.Repository[domain.ServiceDefinition]
	Billing  *config.BillingConfigHolder
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	store    repository.Repository[domain.ServiceDefinition]
	billing  *config.BillingConfigHolder
	auditSvc auditdomain.Service
	byCode   cache.Cache[string, domain.ServiceDefinition]
}

func NewService(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("catalog.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		store:    p.Store,
		billing:  p.Billing,
		auditSvc: p.AuditSvc,
		byCode:   cache.NewTTLCacheWithClock[string, domain.ServiceDefinition](p.Clock.Now),
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.ServiceDefinition, error) {
	opts := []option.QueryOption{option.WithOrder("code ASC")}
	if req.ActiveOnly {
		opts = append(opts, option.WithWhere("is_active = ?", true))
	}
	items, err := s.store.Find(ctx, &domain.ServiceDefinition{}, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ServiceDefinition, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.ServiceDefinition, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.ServiceDefinition{}, err
	}
	item, err := s.store.FindOne(ctx, &domain.ServiceDefinition{ID: parsed})
	if err != nil {
		return domain.ServiceDefinition{}, err
	}
	if item == nil {
		return domain.ServiceDefinition{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (domain.ServiceDefinition, error) {
	parsed, err := tariff.ParseServiceCode(code)
	if err != nil {
		return domain.ServiceDefinition{}, domain.ErrNotFound
	}
	if cached, ok := s.byCode.Get(parsed.String()); ok {
		return cached, nil
	}

	item, err := s.store.FindOne(ctx, &domain.ServiceDefinition{Code: parsed.String()})
	if err != nil {
		return domain.ServiceDefinition{}, err
	}
	if item == nil {
		return domain.ServiceDefinition{}, domain.ErrNotFound
	}
	s.byCode.Set(parsed.String(), *item, codeCacheTTL)
	return *item, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.ServiceDefinition, error) {
	code, err := tariff.ParseServiceCode(req.Code)
	if err != nil {
		return domain.ServiceDefinition{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.ServiceDefinition{}, domain.ErrInvalidName
	}
	if _, err := tariff.ParseSchedule(code, req.BillingRules, req.Zones); err != nil {
		return domain.ServiceDefinition{}, fmt.Errorf("%w: %v", domain.ErrInvalidRules, err)
	}

	now := s.clock.Now()
	def := domain.ServiceDefinition{
		ID:            s.genID.Generate(),
		Code:          code.String(),
		Name:          name,
		Slug:          slug.Make(name),
		Description:   strings.TrimSpace(req.Description),
		ServiceType:   strings.TrimSpace(req.ServiceType),
		BillingPeriod: strings.TrimSpace(req.BillingPeriod),
		BillingRules:  datatypes.JSONMap(req.BillingRules),
		Zones:         datatypes.JSONSlice[string](req.Zones),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, &def); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.ServiceDefinition{}, domain.ErrCodeTaken
		}
		return domain.ServiceDefinition{}, err
	}
	s.byCode.Purge()

	s.audit(ctx, "service.create", def, map[string]any{"code": def.Code, "name": def.Name})
	return def, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (domain.ServiceDefinition, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.ServiceDefinition{}, err
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.ServiceDefinition{}, domain.ErrInvalidName
		}
		updates["name"] = name
		updates["slug"] = slug.Make(name)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.ServiceType != nil {
		updates["service_type"] = strings.TrimSpace(*req.ServiceType)
	}
	if req.BillingPeriod != nil {
		updates["billing_period"] = strings.TrimSpace(*req.BillingPeriod)
	}
	if req.BillingRules != nil || req.Zones != nil {
		rules := map[string]any(current.BillingRules)
		if req.BillingRules != nil {
			rules = req.BillingRules
		}
		zones := []string(current.Zones)
		if req.Zones != nil {
			zones = req.Zones
		}
		if _, err := tariff.ParseSchedule(tariff.ServiceCode(current.Code), rules, zones); err != nil {
			return domain.ServiceDefinition{}, fmt.Errorf("%w: %v", domain.ErrInvalidRules, err)
		}
		updates["billing_rules"] = datatypes.JSONMap(rules)
		updates["zones"] = datatypes.JSONSlice[string](zones)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return domain.ServiceDefinition{}, domain.ErrNoFieldsToUpdate
	}
	updates["updated_at"] = s.clock.Now()

	if err := s.store.Update(ctx, current.ID, updates); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.ServiceDefinition{}, domain.ErrCodeTaken
		}
		return domain.ServiceDefinition{}, err
	}
	s.byCode.Purge()

	updated, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.ServiceDefinition{}, err
	}
	fields := make([]string, 0, len(updates))
	for key := range updates {
		if key != "updated_at" {
			fields = append(fields, key)
		}
	}
	s.audit(ctx, "service.update", updated, map[string]any{"code": updated.Code, "fields": fields})
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (domain.ServiceDefinition, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.ServiceDefinition{}, err
	}
	if !current.IsActive {
		return current, nil
	}
	if err := s.store.Update(ctx, current.ID, map[string]any{
		"is_active":  false,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return domain.ServiceDefinition{}, err
	}
	s.byCode.Purge()

	current.IsActive = false
	s.audit(ctx, "service.deactivate", current, map[string]any{"code": current.Code})
	return current, nil
}

func (s *Service) Seed(ctx context.Context, seeds []config.ServiceSeed) (int, error) {
	inserted := 0
	for _, seed := range seeds {
		code, err := tariff.ParseServiceCode(seed.Code)
		if err != nil {
			return inserted, fmt.Errorf("seed %q: %w", seed.Code, err)
		}
		if _, err := tariff.ParseSchedule(code, seed.BillingRules, seed.Zones); err != nil {
			return inserted, fmt.Errorf("seed %s: %w", code, err)
		}

		now := s.clock.Now()
		def := domain.ServiceDefinition{
			ID:            s.genID.Generate(),
			Code:          code.String(),
			Name:          strings.TrimSpace(seed.Name),
			Slug:          slug.Make(seed.Name),
			Description:   strings.TrimSpace(seed.Description),
			ServiceType:   strings.TrimSpace(seed.ServiceType),
			BillingPeriod: strings.TrimSpace(seed.BillingPeriod),
			BillingRules:  datatypes.JSONMap(seed.BillingRules),
			Zones:         datatypes.JSONSlice[string](seed.Zones),
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		created, err := s.store.CreateIfAbsent(ctx, &def, "code")
		if err != nil {
			return inserted, fmt.Errorf("seed %s: %w", code, err)
		}
		if created {
			inserted++
		}
	}
	if inserted > 0 {
		s.byCode.Purge()
		s.log.Info("service catalog seeded", zap.Int("inserted", inserted))
	}
	return inserted, nil
}

func (s *Service) Quote(ctx context.Context, code string, attrs map[string]any) (domain.Quote, error) {
	parsed, err := tariff.ParseServiceCode(code)
	if err != nil {
		return domain.Quote{}, err
	}
	req, err := tariff.Decode(parsed, attrs)
	if err != nil {
		return domain.Quote{}, err
	}

	def, err := s.GetByCode(ctx, parsed.String())
	if err != nil {
		return domain.Quote{}, err
	}
	if !def.IsActive {
		return domain.Quote{}, domain.ErrInactive
	}

	schedule, err := tariff.ParseSchedule(parsed, def.BillingRules, def.Zones)
	if err != nil {
		s.log.Error("stored billing rules are invalid", zap.String("service_code", def.Code), zap.Error(err))
		return domain.Quote{}, fmt.Errorf("%w: %v", domain.ErrInvalidRules, err)
	}
	amount, err := tariff.Calculate(schedule, req)
	if err != nil {
		return domain.Quote{}, err
	}
	if !amount.IsPositive() {
		return domain.Quote{}, domain.ErrZeroAmount
	}

	billing := s.billing.Get()
	rule := tariff.NewFeeRule(billing.ProcessingFee.Rate, billing.ProcessingFee.Minimum, billing.ProcessingFee.Maximum)
	priced := rule.Quote(amount)
	return domain.Quote{
		Service:  def,
		Request:  req,
		Amount:   priced.Amount,
		Fee:      priced.Fee,
		Total:    priced.Total,
		Currency: billing.Currency,
	}, nil
}

func (s *Service) audit(ctx context.Context, action string, def domain.ServiceDefinition, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := def.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "service", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

