package authorization

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *ServiceImpl {
	t.Helper()
	dsn := fmt.Sprintf("file:authz_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return &ServiceImpl{
		db:       db,
		log:      zap.NewNop(),
		enforcer: enforcer,
	}
}

func TestAuthorizeAllowsAdmin(t *testing.T) {
	svc := newTestService(t)
	err := svc.Authorize(context.Background(), Actor{Type: ActorTypeUser, ID: "idp|1", Role: "ADMIN"}, ObjectService, ActionServiceCreate)
	assert.NoError(t, err)
}

func TestAuthorizeDeniesCitizenAdminCapability(t *testing.T) {
	svc := newTestService(t)
	err := svc.Authorize(context.Background(), Actor{Type: ActorTypeUser, ID: "idp|2", Role: RoleCitizen}, ObjectDashboard, ActionDashboardView)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeDefaultsToCitizen(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	assert.NoError(t, svc.Authorize(ctx, Actor{Type: ActorTypeUser, ID: "idp|3"}, ObjectPayment, ActionPaymentSettle))
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Type: ActorTypeUser, ID: "idp|3"}, ObjectService, ActionServiceCreate), ErrForbidden)
}

func TestAuthorizeRoleChangeReplacesGrouping(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	actor := Actor{Type: ActorTypeUser, ID: "idp|4", Role: RoleAdmin}
	require.NoError(t, svc.Authorize(ctx, actor, ObjectAuditLog, ActionAuditLogView))

	actor.Role = RoleFinance
	assert.ErrorIs(t, svc.Authorize(ctx, actor, ObjectAuditLog, ActionAuditLogView), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, actor, ObjectCollections, ActionCollectionsView))
}

func TestAuthorizeSystem(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.Authorize(context.Background(), SystemActor(), ObjectPayment, ActionPaymentReconcile))
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Type: ActorTypeUser}, ObjectService, ActionServiceView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Type: "robot", ID: "x"}, ObjectService, ActionServiceView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, SystemActor(), "", ActionServiceView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, SystemActor(), ObjectService, ""), ErrInvalidAction)
}
