package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/model"
)

type Reindexer interface {
	Reindex(ctx context.Context, location string, indexName string) (*model.BuildReport, error)
}

// ReindexJob rebuilds an index from its corpus on a schedule.
type ReindexJob struct {
	indexer   Reindexer
	location  string
	indexName string
}

func NewReindexJob(indexer Reindexer, location string, indexName string) *ReindexJob {
	return &ReindexJob{indexer: indexer, location: location, indexName: indexName}
}

func (j *ReindexJob) Name() string {
	return "reindex"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	if j.indexer == nil || j.location == "" {
		return nil
	}
	report, err := j.indexer.Reindex(ctx, j.location, j.indexName)
	if err != nil {
		return err
	}
	if report.Partial() {
		logutil.GetLogger(ctx).Warn("reindex finished with failures",
			zap.String("index", j.indexName),
			zap.Int("failed", len(report.Failed)),
			zap.Int("skipped", len(report.Skipped)),
		)
	}
	return nil
}
