package subs

import (
	"context"

	"github.com/polymirror/engine/internal/model"
)

// Store is the read surface of the subscription table collaborator.
type Store interface {
	// ActiveLeaders returns all leader accounts marked active.
	ActiveLeaders(ctx context.Context) ([]model.LeaderAccount, error)

	// ActiveForLeader returns all active subscriptions for one leader.
	ActiveForLeader(ctx context.Context, leaderID string) ([]model.FollowerSubscription, error)
}
