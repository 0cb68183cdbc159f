package app

import (
	"context"

	"github.com/fairyhunter13/subsidy-matcher/internal/adapter/rediscache"
	qdrantcli "github.com/fairyhunter13/subsidy-matcher/internal/adapter/vector/qdrant"
)

// BuildReadinessChecks returns probe functions for the configured external
// collaborators. A nil check means the collaborator is not configured and is
// skipped by the readiness handler.
func BuildReadinessChecks(qcli *qdrantcli.Client, rcache *rediscache.Cache) (qdrantCheck, redisCheck func(ctx context.Context) error) {
	if qcli != nil {
		qdrantCheck = qcli.Healthz
	}
	if rcache != nil {
		redisCheck = rcache.Ping
	}
	return qdrantCheck, redisCheck
}
