package main

import (
	"log/slog"

	"github.com/nearbymesh/nearby/pkg/connstate"
	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/model"
)

// logResponder implements nearby.Responder by logging every callback, the
// simplest host application a standalone daemon can have: no view layer to
// notify, just an audit trail on stderr.
type logResponder struct{}

func (logResponder) DocDataUpdated(ticket docstore.Ticket) {
	slog.Info("nearbyd: active document changed", "capability_bytes", len(ticket.Capability))
}

func (logResponder) IdentitiesUpdated(identities []model.Identity) {
	slog.Info("nearbyd: identities updated", "count", len(identities))
}

func (logResponder) PicsUpdated() {
	slog.Debug("nearbyd: portraits updated")
}

func (logResponder) StatusesUpdated(statuses map[docstore.Author]model.Status) {
	slog.Debug("nearbyd: statuses updated", "count", len(statuses))
}

func (logResponder) AllMessagesUpdated(posts []model.Post) {
	slog.Info("nearbyd: post list replaced", "count", len(posts))
}

func (logResponder) OneMessageUpdated(newLen int, post model.Post) {
	slog.Debug("nearbyd: post appended", "total", newLen)
}

func (logResponder) ConStateUpdated(state connstate.State) {
	slog.Info("nearbyd: connection state", "state", state.Kind, "peers", state.PeerCount)
}
