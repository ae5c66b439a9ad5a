package service

import (
	"context"
	"errors"
	"testing"

	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/flowstore"
)

func TestResolveAllReferences(t *testing.T) {
	s := spec(domain.JobTypeTransient, "urn:dataio-fs:1")
	res := NewReferenceResolver(&fakeFlowStore{splitter: "ISO2709"}).Resolve(context.Background(), &s)

	if len(res.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", res.Diagnostics)
	}
	for _, slot := range []domain.ReferenceSlot{domain.SlotSubmitter, domain.SlotFlowBinder, domain.SlotFlow, domain.SlotSink} {
		if _, ok := res.References.Get(slot); !ok {
			t.Errorf("slot %s not populated", slot)
		}
	}
	if res.References[domain.SlotSink].Name != sinkName {
		t.Errorf("sink name = %q", res.References[domain.SlotSink].Name)
	}
	if res.RecordSplitter != "ISO2709" {
		t.Errorf("record splitter = %q", res.RecordSplitter)
	}
}

func TestResolveCollectsEveryFailure(t *testing.T) {
	transport := errors.New("connection refused")
	tests := []struct {
		name     string
		flow     *fakeFlowStore
		wantTags []string
		present  []domain.ReferenceSlot
	}{
		{
			name:     "flow and sink missing",
			flow:     &fakeFlowStore{flowErr: flowstore.ErrNotFound, sinkErr: flowstore.ErrNotFound},
			wantTags: []string{"FLOW", "SINK"},
			present:  []domain.ReferenceSlot{domain.SlotSubmitter, domain.SlotFlowBinder},
		},
		{
			name:     "flow binder missing",
			flow:     &fakeFlowStore{binderErr: flowstore.ErrNotFound},
			wantTags: []string{"FLOW_BINDER", "FLOW", "SINK"},
			present:  []domain.ReferenceSlot{domain.SlotSubmitter},
		},
		{
			name:     "everything unavailable",
			flow:     &fakeFlowStore{submitterErr: transport, binderErr: transport},
			wantTags: []string{"SUBMITTER", "FLOW_BINDER", "FLOW", "SINK"},
		},
		{
			name:     "disabled submitter",
			flow:     &fakeFlowStore{disabled: true},
			wantTags: []string{"SUBMITTER"},
			present:  []domain.ReferenceSlot{domain.SlotFlowBinder, domain.SlotFlow, domain.SlotSink},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := spec(domain.JobTypeTransient, "urn:dataio-fs:1")
			res := NewReferenceResolver(tt.flow).Resolve(context.Background(), &s)

			if len(res.Diagnostics) != len(tt.wantTags) {
				t.Fatalf("got %d diagnostics, want %d: %+v", len(res.Diagnostics), len(tt.wantTags), res.Diagnostics)
			}
			for i, d := range res.Diagnostics {
				if d.Level != domain.DiagnosticFatal {
					t.Errorf("diagnostic %d level = %s", i, d.Level)
				}
				if d.Tag != tt.wantTags[i] {
					t.Errorf("diagnostic %d tag = %s, want %s", i, d.Tag, tt.wantTags[i])
				}
				if d.Message == "" {
					t.Errorf("diagnostic %d has no message", i)
				}
				if _, ok := res.References.Get(domain.ReferenceSlot(d.Tag)); ok {
					t.Errorf("failed slot %s is populated", d.Tag)
				}
			}
			if len(res.References) != len(tt.present) {
				t.Errorf("populated slots = %v, want %v", res.References, tt.present)
			}
			for _, slot := range tt.present {
				if _, ok := res.References.Get(slot); !ok {
					t.Errorf("slot %s should be populated", slot)
				}
			}
		})
	}
}
