package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"renderworker/internal/adapters/storage/localfs"
	"renderworker/internal/dispatch"
	"renderworker/internal/gles"
	"renderworker/internal/pkg/errors"
)

// nameService answers GetWorkerName from a function.
type nameService struct {
	dispatch.Client
	requests []string
	answer   func(requested string) (dispatch.WorkerNameResult, error)
}

func (s *nameService) GetWorkerName(_ context.Context, _ json.RawMessage, requested string) (dispatch.WorkerNameResult, error) {
	s.requests = append(s.requests, requested)
	return s.answer(requested)
}

func TestNegotiate(t *testing.T) {
	ctx := context.Background()
	info := PlatformInfo(gles.Info{Platform: "soft"})

	t.Run("proposes persisted name and saves canonical one", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Save(ctx, 1, "cached")
		svc := &nameService{answer: func(string) (dispatch.WorkerNameResult, error) {
			return dispatch.WorkerNameResult{WorkerName: "canonical"}, nil
		}}

		id, err := NewNegotiator(svc, store, nil).Negotiate(ctx, 1, "", info)
		if err != nil {
			t.Fatalf("Negotiate() error = %v", err)
		}
		if svc.requests[0] != "cached" {
			t.Errorf("proposed %q, want cached", svc.requests[0])
		}
		if id.Name != "canonical" || id.Slot != 1 {
			t.Errorf("unexpected identity %+v", id)
		}
		if saved, _ := store.Load(ctx, 1); saved != "canonical" {
			t.Errorf("persisted %q, want canonical", saved)
		}
	})

	t.Run("override wins over persisted name", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Save(ctx, 0, "cached")
		svc := &nameService{answer: func(r string) (dispatch.WorkerNameResult, error) {
			return dispatch.WorkerNameResult{WorkerName: r}, nil
		}}

		if _, err := NewNegotiator(svc, store, nil).Negotiate(ctx, 0, "chosen", info); err != nil {
			t.Fatalf("Negotiate() error = %v", err)
		}
		if svc.requests[0] != "chosen" {
			t.Errorf("proposed %q, want chosen", svc.requests[0])
		}
	})

	t.Run("rejection", func(t *testing.T) {
		store := NewMemoryStore()
		svc := &nameService{answer: func(string) (dispatch.WorkerNameResult, error) {
			return dispatch.WorkerNameResult{Error: dispatch.WorkerNameTaken}, nil
		}}

		_, err := NewNegotiator(svc, store, nil).Negotiate(ctx, 0, "taken", info)
		if !errors.IsCode(err, errors.CodeIdentityRejected) || !errors.IsFatal(err) {
			t.Fatalf("expected fatal IDENTITY_REJECTED, got %v", err)
		}
		if err.Error() != "identity.negotiate: [IDENTITY_REJECTED] Worker name rejected: WORKER_NAME_TAKEN" {
			t.Errorf("unexpected message %q", err.Error())
		}
		if saved, _ := store.Load(ctx, 0); saved != "" {
			t.Errorf("rejected name must not be persisted, got %q", saved)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		svc := &nameService{answer: func(string) (dispatch.WorkerNameResult, error) {
			return dispatch.WorkerNameResult{}, errors.Transport(fmt.Errorf("refused"), "dispatch.worker_name")
		}}
		_, err := NewNegotiator(svc, NewMemoryStore(), nil).Negotiate(ctx, 0, "", info)
		if !errors.IsCode(err, errors.CodeTransport) {
			t.Errorf("expected TRANSPORT_ERROR, got %v", err)
		}
	})
}

func TestObjectStore(t *testing.T) {
	ctx := context.Background()
	s := NewObjectStore(localfs.New(t.TempDir()))

	if name, err := s.Load(ctx, 0); err != nil || name != "" {
		t.Fatalf("empty store: %q, %v", name, err)
	}
	if err := s.Save(ctx, 0, "alpha"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, 1, "beta"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if name, _ := s.Load(ctx, 0); name != "alpha" {
		t.Errorf("slot 0 = %q, want alpha", name)
	}

	if err := Reset(ctx, s, 3); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	for slot := 0; slot < 2; slot++ {
		if name, _ := s.Load(ctx, slot); name != "" {
			t.Errorf("slot %d still holds %q after reset", slot, name)
		}
	}
}

func TestPlatformInfo(t *testing.T) {
	raw := PlatformInfo(gles.Info{Platform: "soft", Vendor: "v", Renderer: "r", Antialiasing: true})
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("platform info is not JSON: %v", err)
	}
	if m["clientplatform"] != "soft" || m["GL_VENDOR"] != "v" || m["Antialiasing"] != true {
		t.Errorf("unexpected platform info %v", m)
	}
}
