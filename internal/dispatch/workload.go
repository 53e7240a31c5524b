// Package dispatch executes described REST operations against the Discord API.
//
// Every call the resource managers make is described by a Workload: the HTTP
// method class, an operation tag, the interpolated path and an optional JSON
// body. A Dispatcher turns a Workload into a Response. Non-success status codes
// are returned as a Response, not as an error; only transport failures are
// errors.
package dispatch

import (
	"net/http"
	"net/url"
)

// Class is the HTTP method classification of a Workload.
type Class int

const (
	Get Class = iota
	Put
	Post
	Patch
	Delete
)

// Method returns the HTTP method for c.
func (c Class) Method() string {
	switch c {
	case Put:
		return http.MethodPut
	case Post:
		return http.MethodPost
	case Patch:
		return http.MethodPatch
	case Delete:
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

// Type tags the specific REST operation a Workload performs. It is used for
// logging and metrics labels.
type Type int

const (
	Unset Type = iota
	GetChannel
	GetGuildChannels
	PostUserDM
	PutChannelPermissionOverwrites
	DeleteChannelPermissionOverwrites
	GetGuild
	PutGuildBan
	GetInvites
	GetInvite
	GetVanityInvite
	GetAuditLog
	DeleteLeaveGuild
	GetGuildMember
	PatchGuildMember
	GetRoles
	PostRole
	PatchRole
	PatchGuildRoles
	DeleteGuildRole
	PutGuildMemberRole
	DeleteGuildMemberRole
	GetMessage
	GetMessages
	GetPinnedMessages
	PostMessage
	PatchMessage
	DeleteMessage
	DeleteMessageOld
	DeleteMessagesBulk
	PutPinMessage
	PutReaction
	DeleteOwnReaction
	DeleteUserReaction
	DeleteReactionsByEmoji
	DeleteAllReactions
	PostInteractionResponse
	PostDeferredInteractionResponse
	GetInteractionResponse
	PatchInteractionResponse
	DeleteInteractionResponse
	PostFollowUpMessage
	PatchFollowUpMessage
	DeleteFollowUpMessage
	GetUser
)

var typeNames = map[Type]string{
	Unset:                             "UNSET",
	GetChannel:                        "GET_CHANNEL",
	GetGuildChannels:                  "GET_GUILD_CHANNELS",
	PostUserDM:                        "POST_USER_DM",
	PutChannelPermissionOverwrites:    "PUT_CHANNEL_PERMISSION_OVERWRITES",
	DeleteChannelPermissionOverwrites: "DELETE_CHANNEL_PERMISSION_OVERWRITES",
	GetGuild:                          "GET_GUILD",
	PutGuildBan:                       "PUT_GUILD_BAN",
	GetInvites:                        "GET_INVITES",
	GetInvite:                         "GET_INVITE",
	GetVanityInvite:                   "GET_VANITY_INVITE",
	GetAuditLog:                       "GET_AUDIT_LOG",
	DeleteLeaveGuild:                  "DELETE_LEAVE_GUILD",
	GetGuildMember:                    "GET_GUILD_MEMBER",
	PatchGuildMember:                  "PATCH_GUILD_MEMBER",
	GetRoles:                          "GET_ROLES",
	PostRole:                          "POST_ROLE",
	PatchRole:                         "PATCH_ROLE",
	PatchGuildRoles:                   "PATCH_GUILD_ROLES",
	DeleteGuildRole:                   "DELETE_GUILD_ROLE",
	PutGuildMemberRole:                "PUT_GUILD_MEMBER_ROLE",
	DeleteGuildMemberRole:             "DELETE_GUILD_MEMBER_ROLE",
	GetMessage:                        "GET_MESSAGE",
	GetMessages:                       "GET_MESSAGES",
	GetPinnedMessages:                 "GET_PINNED_MESSAGES",
	PostMessage:                       "POST_MESSAGE",
	PatchMessage:                      "PATCH_MESSAGE",
	DeleteMessage:                     "DELETE_MESSAGE",
	DeleteMessageOld:                  "DELETE_MESSAGE_OLD",
	DeleteMessagesBulk:                "DELETE_MESSAGES_BULK",
	PutPinMessage:                     "PUT_PIN_MESSAGE",
	PutReaction:                       "PUT_REACTION",
	DeleteOwnReaction:                 "DELETE_OWN_REACTION",
	DeleteUserReaction:                "DELETE_USER_REACTION",
	DeleteReactionsByEmoji:            "DELETE_REACTIONS_BY_EMOJI",
	DeleteAllReactions:                "DELETE_ALL_REACTIONS",
	PostInteractionResponse:           "POST_INTERACTION_RESPONSE",
	PostDeferredInteractionResponse:   "POST_DEFERRED_INTERACTION_RESPONSE",
	GetInteractionResponse:            "GET_INTERACTION_RESPONSE",
	PatchInteractionResponse:          "PATCH_INTERACTION_RESPONSE",
	DeleteInteractionResponse:         "DELETE_INTERACTION_RESPONSE",
	PostFollowUpMessage:               "POST_FOLLOW_UP_MESSAGE",
	PatchFollowUpMessage:              "PATCH_FOLLOW_UP_MESSAGE",
	DeleteFollowUpMessage:             "DELETE_FOLLOW_UP_MESSAGE",
	GetUser:                           "GET_USER",
}

// String returns the upper-snake operation name, e.g. "GET_CHANNEL".
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Workload describes one REST operation.
type Workload struct {
	Class Class
	Type  Type
	// Path is relative to the API base, e.g. "/channels/123".
	Path  string
	Query url.Values
	// Body is the serialized JSON payload, if any.
	Body []byte
	// Reason is sent as the X-Audit-Log-Reason header when non-empty.
	Reason string
}

// Response is the outcome of a dispatched Workload that reached the server.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// OK reports whether the status code is one the API uses for success
// (200, 201 or 204).
func (r Response) OK() bool {
	switch r.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return true
	}
	return false
}
