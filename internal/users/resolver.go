package users

import (
	"context"
	"errors"
)

// Resolver derives the acting role of a chat. It only reads.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver { return &Resolver{dir: dir} }

// ResolveRole returns RoleClient for unknown chats. Directory failures are
// returned rather than masked as CLIENT.
func (r *Resolver) ResolveRole(ctx context.Context, chatID string) (Role, error) {
	id, err := r.dir.GetByChatID(ctx, chatID)
	if errors.Is(err, ErrNotFound) {
		return RoleClient, nil
	}
	if err != nil {
		return "", err
	}
	if id.Role == RoleAdmin {
		return RoleAdmin, nil
	}
	return RoleClient, nil
}
