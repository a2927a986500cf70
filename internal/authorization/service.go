package authorization

import "context"

// Actor is the caller being authorized. Role comes from the identity provider.
type Actor struct {
	Type string
	ID   string
	Role string
}

func SystemActor() Actor {
	return Actor{Type: ActorTypeSystem, Role: RoleSystem}
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}
