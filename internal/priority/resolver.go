package priority

import (
	"github.com/paul-berdier/greg-voice/internal/domain/entities"
)

// Capability class names looked up in the weight table. The double
// underscore entries are flag-based, the rest match guild role names.
const (
	classAdmin       = "__ADMIN__"
	classManageGuild = "__MANAGE_GUILD__"
	classDefault     = "__DEFAULT__"
)

// OwnerWeight dominates every role-derived weight
const OwnerWeight = 10_000

// DefaultWeights is the built-in capability table. Role names map to
// weights; a requester gets the maximum applicable weight. Overridable via
// PRIORITY_ROLE_WEIGHTS.
var DefaultWeights = map[string]int{
	classAdmin:       100,
	classManageGuild: 90,
	"DJ":             80,
	"VIP":            60,
	"Booster":        50,
	classDefault:     0,
}

// Member is the directory's view of a guild member
type Member struct {
	ID              string
	DisplayName     string
	Avatar          string
	Roles           []string
	IsAdministrator bool
	HasManageGuild  bool
	VoiceChannelID  string
}

// UserMeta is the public requester info attached to projected state
type UserMeta struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Directory resolves guild membership from the chat platform. Implemented
// over the bot session; faked in tests.
type Directory interface {
	Member(guildID, userID string) (*Member, error)
	GuildExists(guildID string) bool
}

// Resolver maps (guild, user) to an integer weight and capability flags
type Resolver struct {
	dir     Directory
	weights map[string]int
	ownerID string
}

// NewResolver builds a resolver. overrides replaces or extends the built-in
// weight table; ownerID may be empty.
func NewResolver(dir Directory, overrides map[string]int, ownerID string) *Resolver {
	weights := make(map[string]int, len(DefaultWeights)+len(overrides))
	for k, v := range DefaultWeights {
		weights[k] = v
	}
	for k, v := range overrides {
		weights[k] = v
	}
	return &Resolver{dir: dir, weights: weights, ownerID: ownerID}
}

// IsOwner reports whether userID is the configured service owner
func (r *Resolver) IsOwner(userID string) bool {
	return r.ownerID != "" && userID == r.ownerID
}

// Weight computes the requester's priority weight: the maximum of the owner
// override, the administrator override, the manage-guild override and the
// per-role table.
func (r *Resolver) Weight(guildID, userID string) int {
	if r.IsOwner(userID) {
		return OwnerWeight
	}

	w := r.weights[classDefault]
	m, err := r.dir.Member(guildID, userID)
	if err != nil || m == nil {
		return w
	}

	if m.IsAdministrator {
		if aw := r.weights[classAdmin]; aw > w {
			w = aw
		}
	}
	if m.HasManageGuild {
		if mw := r.weights[classManageGuild]; mw > w {
			w = mw
		}
	}
	for _, role := range m.Roles {
		if rw, ok := r.weights[role]; ok && rw > w {
			w = rw
		}
	}
	return w
}

// BypassQuota reports whether the user skips the per-user cap and the
// priority-boundary restriction on moves.
func (r *Resolver) BypassQuota(guildID, userID string) bool {
	if r.IsOwner(userID) {
		return true
	}
	m, err := r.dir.Member(guildID, userID)
	if err != nil || m == nil {
		return false
	}
	return m.IsAdministrator || m.HasManageGuild
}

// CanBumpOver reports whether the user may override playback owned by a
// track of the given owner weight. Strictly greater wins.
func (r *Resolver) CanBumpOver(guildID, userID string, ownerWeight int) bool {
	return r.Weight(guildID, userID) > ownerWeight
}

// CanEditItem reports whether the user may remove or move the given track:
// its requester, a quota-bypassing user, or anyone strictly outweighing it.
func (r *Resolver) CanEditItem(guildID, userID string, track *entities.Track) bool {
	if track == nil {
		return false
	}
	if track.RequestedBy != "" && track.RequestedBy == userID {
		return true
	}
	if r.BypassQuota(guildID, userID) {
		return true
	}
	return r.Weight(guildID, userID) > track.Priority
}

// FirstNonPriorityIndex returns the index of the first queued item with
// priority 0 — the boundary between the priority band and the normal band.
// Returns len(queue) when every item carries priority.
func FirstNonPriorityIndex(tracks []*entities.Track) int {
	for i, t := range tracks {
		if t.Priority == 0 {
			return i
		}
	}
	return len(tracks)
}

// UserMeta returns the public info for a requester, falling back to the
// bare id when the directory has nothing.
func (r *Resolver) UserMeta(guildID, userID string) *UserMeta {
	m, err := r.dir.Member(guildID, userID)
	if err != nil || m == nil {
		return &UserMeta{ID: userID, Name: userID}
	}
	name := m.DisplayName
	if name == "" {
		name = userID
	}
	return &UserMeta{ID: userID, Name: name, Avatar: m.Avatar}
}
