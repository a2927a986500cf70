package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/revenue/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// Every portal policy lives in a single casbin domain.
const portalDomain = "portal"

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

const (
	RoleAdmin   = "admin"
	RoleFinance = "finance"
	RoleCitizen = "citizen"
	RoleSystem  = "system"
)

const (
	ObjectService     = "service"
	ObjectDashboard   = "dashboard"
	ObjectCollections = "collections"
	ObjectAuditLog    = "audit_log"
	ObjectPayment     = "payment"
)

const (
	ActionServiceView       = "service.view"
	ActionServiceCreate     = "service.create"
	ActionServiceUpdate     = "service.update"
	ActionServiceDeactivate = "service.deactivate"

	ActionDashboardView   = "dashboard.view"
	ActionCollectionsView = "collections.view"
	ActionAuditLogView    = "audit_log.view"

	ActionPaymentSettle    = "payment.settle"
	ActionPaymentReconcile = "payment.reconcile"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := resolveActor(actor)
	if err != nil {
		s.auditDenied(ctx, actor, object, action)
		return err
	}

	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, portalDomain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

func resolveActor(actor Actor) (string, string, error) {
	switch strings.TrimSpace(actor.Type) {
	case ActorTypeSystem:
		return ActorTypeSystem, "role:" + RoleSystem, nil
	case ActorTypeUser:
		id := strings.TrimSpace(actor.ID)
		role := strings.ToLower(strings.TrimSpace(actor.Role))
		if id == "" {
			return "", "", ErrInvalidActor
		}
		if role == "" {
			role = RoleCitizen
		}
		return fmt.Sprintf("user:%s", id), "role:" + role, nil
	default:
		return "", "", ErrInvalidActor
	}
}

// ensureGrouping keeps exactly one role link per subject; roles change when
// the identity provider reissues tokens.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", portalDomain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, portalDomain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, portalDomain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor Actor, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if id := strings.TrimSpace(actor.ID); id != "" {
		actorID = &id
	}
	targetID := object
	_ = s.auditSvc.AuditLog(ctx, actor.Type, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   actor.Role,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:citizen", ObjectService, ActionServiceView},
		{"role:citizen", ObjectPayment, ActionPaymentSettle},

		{"role:finance", ObjectService, ActionServiceView},
		{"role:finance", ObjectDashboard, ActionDashboardView},
		{"role:finance", ObjectCollections, ActionCollectionsView},

		{"role:admin", ObjectService, ActionServiceView},
		{"role:admin", ObjectService, ActionServiceCreate},
		{"role:admin", ObjectService, ActionServiceUpdate},
		{"role:admin", ObjectService, ActionServiceDeactivate},
		{"role:admin", ObjectDashboard, ActionDashboardView},
		{"role:admin", ObjectCollections, ActionCollectionsView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", ObjectPayment, ActionPaymentSettle},

		{"role:system", ObjectPayment, ActionPaymentReconcile},
		{"role:system", ObjectService, ActionServiceCreate},
		{"role:system", ObjectService, ActionServiceUpdate},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
