// Package permission decides what a participant may do in a group. It is pure:
// every answer is derived from the participant's role, the group's settings
// and the group type, never from stored per-member flags.
package permission

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/Gopher0727/GroupHub/internal/model"
)

type Capability uint

const (
	SendMessages Capability = iota
	AddMembers
	RemoveMembers
	EditGroupInfo
	EditSettings
	CreateInvites
	ManageAdmins
	PinMessages
	SendAnnouncements
	ShareFiles
	MentionEveryone

	numCapabilities
)

var capabilityNames = [numCapabilities]string{
	SendMessages:      "sendMessages",
	AddMembers:        "addMembers",
	RemoveMembers:     "removeMembers",
	EditGroupInfo:     "editGroupInfo",
	EditSettings:      "editSettings",
	CreateInvites:     "createInvites",
	ManageAdmins:      "manageAdmins",
	PinMessages:       "pinMessages",
	SendAnnouncements: "sendAnnouncements",
	ShareFiles:        "shareFiles",
	MentionEveryone:   "mentionEveryone",
}

func (c Capability) String() string {
	if c < numCapabilities {
		return capabilityNames[c]
	}
	return "unknown"
}

// All returns every capability in declaration order.
func All() []Capability {
	out := make([]Capability, 0, numCapabilities)
	for c := Capability(0); c < numCapabilities; c++ {
		out = append(out, c)
	}
	return out
}

// Parse maps a capability name back to its value.
func Parse(name string) (Capability, bool) {
	for c, n := range capabilityNames {
		if n == name {
			return Capability(c), true
		}
	}
	return 0, false
}

// Allowed is the core rule table for one role.
func Allowed(role model.Role, g *model.Group, c Capability) bool {
	switch role {
	case model.RoleAdmin:
		return c < numCapabilities
	case model.RoleMember:
	default:
		return false
	}

	s := g.Settings
	switch c {
	case SendMessages:
		return s.WhoCanSendMessages == model.AudienceEveryone &&
			!s.MuteNonAdmins &&
			g.Type != model.GroupTypeAnnouncement
	case AddMembers:
		return s.WhoCanAddMembers == model.AudienceEveryone
	case EditGroupInfo:
		return s.WhoCanEditInfo == model.AudienceEveryone
	case CreateInvites:
		return s.AllowMemberInvites
	case ShareFiles:
		return true
	}
	// removeMembers, editSettings, manageAdmins, pinMessages,
	// sendAnnouncements and mentionEveryone are admin-only.
	return false
}

// HasPermission looks up userID among the group's hydrated participants and
// evaluates c for their role. Users without an active row are denied.
func HasPermission(g *model.Group, userID string, c Capability) bool {
	if g == nil {
		return false
	}
	p, ok := g.ActiveParticipant(userID)
	if !ok {
		return false
	}
	return Allowed(p.Role, g, c)
}

// Set is the derived capability set of one participant.
type Set struct {
	bits *bitset.BitSet
}

// For computes the full capability set of role in g.
func For(role model.Role, g *model.Group) Set {
	bits := bitset.New(uint(numCapabilities))
	for c := Capability(0); c < numCapabilities; c++ {
		if Allowed(role, g, c) {
			bits.Set(uint(c))
		}
	}
	return Set{bits: bits}
}

func (s Set) Has(c Capability) bool {
	return s.bits != nil && s.bits.Test(uint(c))
}

func (s Set) Len() int {
	if s.bits == nil {
		return 0
	}
	return int(s.bits.Count())
}

// Names lists the granted capabilities in declaration order.
func (s Set) Names() []string {
	if s.bits == nil {
		return nil
	}
	names := make([]string, 0, s.bits.Count())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		names = append(names, Capability(i).String())
	}
	return names
}
