package job

import (
	"context"

	"github.com/carebridge/carebridge/internal/authz"
)

// FactResyncJob rebuilds the policy service's fact set from the
// database. Individual fact writes are best effort, so a periodic full
// resync bounds how long drift can last.
type FactResyncJob struct {
	syncer *authz.Syncer
}

func NewFactResyncJob(syncer *authz.Syncer) *FactResyncJob {
	return &FactResyncJob{syncer: syncer}
}

func (j *FactResyncJob) Name() string {
	return "fact_resync"
}

func (j *FactResyncJob) Run(ctx context.Context) error {
	if j.syncer == nil {
		return nil
	}
	return j.syncer.FullResync(ctx)
}
