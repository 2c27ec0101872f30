// Package identity negotiates and persists worker names.
package identity

import (
	"context"
	"encoding/json"
	"runtime"

	"renderworker/internal/dispatch"
	"renderworker/internal/gles"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
)

// Identity is the name a slot works under, as accepted by the dispatch
// service.
type Identity struct {
	Slot         int
	Name         string
	PlatformInfo json.RawMessage
}

// PlatformInfo describes the process and graphics device to the dispatch
// service.
func PlatformInfo(info gles.Info) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"clientplatform":              info.Platform,
		"os":                          runtime.GOOS,
		"arch":                        runtime.GOARCH,
		"go":                          runtime.Version(),
		"GL_VERSION":                  info.Version,
		"GL_SHADING_LANGUAGE_VERSION": info.ShadingLanguageVersion,
		"GL_VENDOR":                   info.Vendor,
		"GL_RENDERER":                 info.Renderer,
		"Antialiasing":                info.Antialiasing,
	})
	return raw
}

// Negotiator obtains a name for a slot and remembers it.
type Negotiator struct {
	client dispatch.Client
	store  Store
	log    *logger.Logger
}

func NewNegotiator(client dispatch.Client, store Store, log *logger.Logger) *Negotiator {
	if log == nil {
		log = logger.Discard()
	}
	return &Negotiator{client: client, store: store, log: log.WithComponent("identity")}
}

// Negotiate proposes override, or the persisted name when override is
// empty, and saves whatever name the service accepts. A refusal is an
// IDENTITY_REJECTED error.
func (n *Negotiator) Negotiate(ctx context.Context, slot int, override string, platformInfo json.RawMessage) (Identity, error) {
	log := n.log.WithSlot(slot)

	requested := override
	if requested == "" {
		saved, err := n.store.Load(ctx, slot)
		if err != nil {
			log.Warn("could not load persisted worker name", "error", err)
		}
		requested = saved
	}
	log.Info("Trying worker '" + requested + "'.")

	res, err := n.client.GetWorkerName(ctx, platformInfo, requested)
	if err != nil {
		return Identity{}, err
	}
	if res.WorkerName == "" {
		reason := string(res.Error)
		if reason == "" {
			reason = "unknown"
		}
		return Identity{}, errors.New(errors.CodeIdentityRejected, "Worker name rejected: "+reason).
			WithOp("identity.negotiate").
			WithField("requested", requested)
	}

	if err := n.store.Save(ctx, slot, res.WorkerName); err != nil {
		log.Warn("could not persist worker name", "name", res.WorkerName, "error", err)
	}
	log.Info("Worker from server '" + res.WorkerName + "'.")

	return Identity{Slot: slot, Name: res.WorkerName, PlatformInfo: platformInfo}, nil
}

// Reset forgets the persisted names of slots 0..slots-1.
func Reset(ctx context.Context, store Store, slots int) error {
	for i := 0; i < slots; i++ {
		if err := store.Clear(ctx, i); err != nil {
			return err
		}
	}
	return nil
}
