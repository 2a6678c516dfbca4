package nearby

import (
	"github.com/nearbymesh/nearby/pkg/connstate"
	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/model"
)

// Responder is the outward-facing callback surface a host application
// implements to receive state changes from the Service. Every method is invoked outside any internal lock.
type Responder interface {
	// DocDataUpdated fires whenever the active document (and therefore its
	// capability ticket) changes: on initialize, on group rotation, and on
	// leave_group.
	DocDataUpdated(ticket docstore.Ticket)
	// IdentitiesUpdated fires whenever the identity list changes.
	IdentitiesUpdated(identities []model.Identity)
	// PicsUpdated fires whenever the portrait map changes.
	PicsUpdated()
	// StatusesUpdated fires whenever the per-author status map is rebuilt
	// or refreshed.
	StatusesUpdated(statuses map[docstore.Author]model.Status)
	// AllMessagesUpdated fires when the post list is replaced wholesale
	// (initial load, or an out-of-order insert forcing a re-sort).
	AllMessagesUpdated(posts []model.Post)
	// OneMessageUpdated fires when a single post is appended in place.
	OneMessageUpdated(newLen int, post model.Post)
	// ConStateUpdated fires on every Connection-State Loop transition.
	ConStateUpdated(state connstate.State)
}
