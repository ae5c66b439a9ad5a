package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/flowstore"
	"github.com/timmy/jobstore/internal/logger"
)

// Resolution is the outcome of resolving a job specification against the flow store.
type Resolution struct {
	References     domain.FlowStoreReferences
	Diagnostics    domain.Diagnostics
	RecordSplitter string
}

// ReferenceResolver looks up the submitter, flow binder, flow and sink of a job.
// Every lookup is attempted; each failure adds one FATAL diagnostic and leaves its slot absent.
type ReferenceResolver struct {
	flowStore FlowStore
}

// NewReferenceResolver creates a resolver over flowStore.
func NewReferenceResolver(flowStore FlowStore) *ReferenceResolver {
	return &ReferenceResolver{flowStore: flowStore}
}

// Resolve resolves spec into flow-store references.
func (r *ReferenceResolver) Resolve(ctx context.Context, spec *domain.JobSpecification) *Resolution {
	res := &Resolution{
		References:  domain.FlowStoreReferences{},
		Diagnostics: domain.Diagnostics{},
	}

	submitter, err := r.flowStore.GetSubmitter(ctx, spec.SubmitterID)
	switch {
	case err != nil:
		res.fail(domain.SlotSubmitter, lookupMessage(err, "submitter", fmt.Sprintf("number %d", spec.SubmitterID)))
	case !submitter.Content.Enabled:
		res.fail(domain.SlotSubmitter, fmt.Sprintf("submitter %d is disabled", spec.SubmitterID))
	default:
		res.References[domain.SlotSubmitter] = domain.FlowStoreReference{
			ID: submitter.ID, Version: submitter.Version, Name: submitter.Content.Name,
		}
	}

	binderKey := fmt.Sprintf("packaging=%s format=%s charset=%s submitter=%d destination=%s",
		spec.Packaging, spec.Format, spec.Charset, spec.SubmitterID, spec.Destination)
	binder, err := r.flowStore.GetFlowBinder(ctx, spec.Packaging, spec.Format, spec.Charset, spec.SubmitterID, spec.Destination)
	if err != nil {
		res.fail(domain.SlotFlowBinder, lookupMessage(err, "flow binder", binderKey))
		res.fail(domain.SlotFlow, "flow could not be looked up: no flow binder for "+binderKey)
		res.fail(domain.SlotSink, "sink could not be looked up: no flow binder for "+binderKey)
		r.logFailures(ctx, spec, res)
		return res
	}
	res.References[domain.SlotFlowBinder] = domain.FlowStoreReference{
		ID: binder.ID, Version: binder.Version, Name: binder.Content.Name,
	}
	res.RecordSplitter = binder.Content.RecordSplitter

	if flow, err := r.flowStore.GetFlow(ctx, binder.Content.FlowID); err != nil {
		res.fail(domain.SlotFlow, lookupMessage(err, "flow", fmt.Sprintf("id %d", binder.Content.FlowID)))
	} else {
		res.References[domain.SlotFlow] = domain.FlowStoreReference{
			ID: flow.ID, Version: flow.Version, Name: flow.Content.Name,
		}
	}

	if sink, err := r.flowStore.GetSink(ctx, binder.Content.SinkID); err != nil {
		res.fail(domain.SlotSink, lookupMessage(err, "sink", fmt.Sprintf("id %d", binder.Content.SinkID)))
	} else {
		res.References[domain.SlotSink] = domain.FlowStoreReference{
			ID: sink.ID, Version: sink.Version, Name: sink.Content.Name,
		}
	}

	r.logFailures(ctx, spec, res)
	return res
}

func (res *Resolution) fail(slot domain.ReferenceSlot, message string) {
	diag := domain.NewFatalDiagnostic(message)
	diag.Tag = string(slot)
	res.Diagnostics = append(res.Diagnostics, diag)
}

func (r *ReferenceResolver) logFailures(ctx context.Context, spec *domain.JobSpecification, res *Resolution) {
	if len(res.Diagnostics) == 0 {
		return
	}
	logger.With(logger.Fields{
		logger.FieldComponent: "resolver",
		logger.FieldCount:     len(res.Diagnostics),
		"submitter":           spec.SubmitterID,
	}).Warn(ctx, "Flow-store references could not be resolved")
}

func lookupMessage(err error, entity, key string) string {
	if errors.Is(err, flowstore.ErrNotFound) {
		return fmt.Sprintf("%s not found: %s", entity, key)
	}
	return fmt.Sprintf("%s lookup failed for %s: %v", entity, key, err)
}
