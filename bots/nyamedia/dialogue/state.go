package dialogue

import "github.com/nyamedia/nyabot/bots/nyamedia/domain"

// StateKind tags the step a conversation is waiting on.
type StateKind int

const (
	Start StateKind = iota
	AwaitingUsername
	AwaitingCatalogSource
	AwaitingMediaType
	AwaitingMediaID
	AwaitingConfirmation
	AwaitingDeleteConfirmation
)

var stateNames = [...]string{
	"start",
	"awaiting_username",
	"awaiting_catalog_source",
	"awaiting_media_type",
	"awaiting_media_id",
	"awaiting_confirmation",
	"awaiting_delete_confirmation",
}

func (k StateKind) String() string {
	if k < 0 || int(k) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[k]
}

// State is the conversation state of one chat. Fields beyond Kind are
// only meaningful for the kinds that carry them:
// AwaitingMediaType has Provider, AwaitingMediaID adds MediaKind, and
// AwaitingConfirmation adds MediaID and Metadata.
type State struct {
	Kind      StateKind
	Provider  domain.Provider
	MediaKind domain.Kind
	MediaID   string
	Metadata  *domain.Metadata
}

func idle() State { return State{Kind: Start} }
