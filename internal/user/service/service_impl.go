package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/observability/logger"
	"github.com/smallbiznis/revenue/internal/user/domain"
	pkgdb "github.com/smallbiznis/revenue/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
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
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Upsert(ctx context.Context, profile domain.Profile) (domain.User, error) {
	profile = normalizeProfile(profile)
	if profile.ExternalID == "" {
		return domain.User{}, domain.ErrInvalidExternalID
	}

	existing, err := s.repo.FindByExternalID(ctx, s.db, profile.ExternalID)
	if err != nil {
		return domain.User{}, err
	}
	if existing != nil {
		return s.refreshContact(ctx, *existing, profile)
	}

	now := s.clock.Now()
	user := domain.User{
		ID:         s.genID.Generate(),
		ExternalID: profile.ExternalID,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		Email:      profile.Email,
		Phone:      profile.Phone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, s.db, &user); err != nil {
		if !pkgdb.IsDuplicateKeyErr(err) {
			return domain.User{}, err
		}
		// Lost the race against a concurrent first request.
		winner, findErr := s.repo.FindByExternalID(ctx, s.db, profile.ExternalID)
		if findErr != nil {
			return domain.User{}, findErr
		}
		if winner == nil {
			return domain.User{}, err
		}
		return *winner, nil
	}

	s.log.Info("user created",
		zap.String("user_id", user.ID.String()),
		logger.Email("email", user.Email),
	)
	return user, nil
}

// refreshContact only overwrites fields the identity provider actually sent.
func (s *Service) refreshContact(ctx context.Context, user domain.User, profile domain.Profile) (domain.User, error) {
	changed := false
	apply := func(dst *string, value string) {
		if value != "" && *dst != value {
			*dst = value
			changed = true
		}
	}
	apply(&user.FirstName, profile.FirstName)
	apply(&user.LastName, profile.LastName)
	apply(&user.Email, profile.Email)
	apply(&user.Phone, profile.Phone)
	if !changed {
		return user, nil
	}

	user.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateContact(ctx, s.db, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.User{}, domain.ErrInvalidExternalID
	}
	user, err := s.repo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func normalizeProfile(p domain.Profile) domain.Profile {
	return domain.Profile{
		ExternalID: strings.TrimSpace(p.ExternalID),
		FirstName:  strings.TrimSpace(p.FirstName),
		LastName:   strings.TrimSpace(p.LastName),
		Email:      strings.ToLower(strings.TrimSpace(p.Email)),
		Phone:      strings.TrimSpace(p.Phone),
	}
}
