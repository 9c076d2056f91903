package job

import (
	"context"

	"github.com/carebridge/carebridge/internal/trace"
)

type TraceFlushJob struct {
	tracer *trace.Logger
}

func NewTraceFlushJob(tracer *trace.Logger) *TraceFlushJob {
	return &TraceFlushJob{tracer: tracer}
}

func (j *TraceFlushJob) Name() string {
	return "trace_flush"
}

func (j *TraceFlushJob) Run(ctx context.Context) error {
	if j.tracer == nil {
		return nil
	}
	return j.tracer.Flush(ctx)
}
