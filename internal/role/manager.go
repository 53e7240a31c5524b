// Package role manages guild roles. Roles are cached by ID; a side index
// records which guild each cached role belongs to.
package role

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/resource"
)

// Manager caches roles by ID.
type Manager struct {
	f     *resource.Family[string, discordgo.Role]
	guild *cache.Store[string, string] // role ID -> guild ID
}

func keyOf(r *discordgo.Role) (string, bool) { return r.ID, r.ID != "" }

// NewManager constructs a Manager running on e.
func NewManager(e *resource.Engine, opts ...cache.Option) *Manager {
	return &Manager{
		f:     resource.NewFamily(e, "roles", keyOf, opts...),
		guild: cache.New[string, string]("role_guilds"),
	}
}

func rolesPath(guildID string) string { return "/guilds/" + guildID + "/roles" }

// Get returns the cached role, or resource.ErrNotFound.
func (m *Manager) Get(ctx context.Context, roleID string) (*discordgo.Role, error) {
	return m.f.Get(ctx, roleID)
}

// Fetch retrieves every role of the guild, caches them all and returns the
// one asked for. A role missing from the listing is resource.ErrNotFound.
func (m *Manager) Fetch(ctx context.Context, guildID, roleID string) (*discordgo.Role, error) {
	roles, err := m.fetchAll(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("role: %s in guild %s: %w", roleID, guildID, resource.ErrNotFound)
}

// FetchGuildRoles retrieves and caches every role of the guild.
func (m *Manager) FetchGuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	return m.fetchAll(ctx, guildID)
}

func (m *Manager) fetchAll(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	e := m.f.Engine()
	w := dispatch.Workload{Class: dispatch.Get, Type: dispatch.GetRoles, Path: rolesPath(guildID)}
	return resource.RunShared(ctx, e, w.Type.String()+" "+w.Path, "roles.fetch",
		func(ctx context.Context, emit func([]*discordgo.Role)) error {
			resp, err := e.Call(ctx, w)
			if err != nil {
				return err
			}
			var roles []*discordgo.Role
			if err := json.Unmarshal(resp.Body, &roles); err != nil {
				return fmt.Errorf("role: decode roles: %w", err)
			}
			m.store(guildID, roles)
			emit(roles)
			return nil
		})
}

func (m *Manager) store(guildID string, roles []*discordgo.Role) {
	entries := make(map[string]*discordgo.Role, len(roles))
	index := make(map[string]string, len(roles))
	for _, r := range roles {
		if r == nil || r.ID == "" {
			continue
		}
		entries[r.ID] = r
		index[r.ID] = guildID
	}
	m.guild.Merge(index)
	m.f.Store().Merge(entries)
}

// GuildRoles returns the cached roles of a guild.
func (m *Manager) GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	return m.f.Select(ctx, func(id string, _ *discordgo.Role) bool {
		g, ok := m.guild.Get(id)
		return ok && g == guildID
	})
}

// Create adds a role to the guild and caches it.
func (m *Manager) Create(ctx context.Context, guildID string, params *discordgo.RoleParams) (*discordgo.Role, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("role: encode params: %w", err)
	}
	r, err := m.f.Write(ctx, dispatch.Workload{
		Class: dispatch.Post,
		Type:  dispatch.PostRole,
		Path:  rolesPath(guildID),
		Body:  body,
	})
	if err == nil && r.ID != "" {
		m.guild.Put(r.ID, guildID)
	}
	return r, err
}

// Update edits a role and caches the result.
func (m *Manager) Update(ctx context.Context, guildID, roleID string, params *discordgo.RoleParams) (*discordgo.Role, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("role: encode params: %w", err)
	}
	r, err := m.f.Write(ctx, dispatch.Workload{
		Class: dispatch.Patch,
		Type:  dispatch.PatchRole,
		Path:  rolesPath(guildID) + "/" + roleID,
		Body:  body,
	})
	if err == nil {
		m.guild.Put(roleID, guildID)
	}
	return r, err
}

// Position moves one role in the guild's role ordering.
type Position struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// UpdatePositions reorders the guild's roles. The API answers with every role
// of the guild; all of them are cached.
func (m *Manager) UpdatePositions(ctx context.Context, guildID string, positions []Position) ([]*discordgo.Role, error) {
	body, err := json.Marshal(positions)
	if err != nil {
		return nil, fmt.Errorf("role: encode positions: %w", err)
	}
	e := m.f.Engine()
	w := dispatch.Workload{Class: dispatch.Patch, Type: dispatch.PatchGuildRoles, Path: rolesPath(guildID), Body: body}
	return resource.Run(ctx, e, "roles.update_positions", func(ctx context.Context, emit func([]*discordgo.Role)) error {
		resp, err := e.Call(ctx, w)
		if err != nil {
			return err
		}
		var roles []*discordgo.Role
		if err := json.Unmarshal(resp.Body, &roles); err != nil {
			return fmt.Errorf("role: decode roles: %w", err)
		}
		m.store(guildID, roles)
		emit(roles)
		return nil
	})
}

// Delete removes a role from the guild and evicts it.
func (m *Manager) Delete(ctx context.Context, guildID, roleID string) error {
	err := m.f.Delete(ctx, dispatch.Workload{
		Class: dispatch.Delete,
		Type:  dispatch.DeleteGuildRole,
		Path:  rolesPath(guildID) + "/" + roleID,
	}, roleID)
	if err == nil {
		m.guild.Delete(roleID)
	}
	return err
}

func memberRolePath(guildID, userID, roleID string) string {
	return "/guilds/" + guildID + "/members/" + userID + "/roles/" + roleID
}

// AddToMember grants a role to a member. No cache is modified.
func (m *Manager) AddToMember(ctx context.Context, guildID, userID, roleID string) error {
	return m.f.Exec(ctx, dispatch.Workload{
		Class: dispatch.Put,
		Type:  dispatch.PutGuildMemberRole,
		Path:  memberRolePath(guildID, userID, roleID),
	})
}

// RemoveFromMember revokes a role from a member. No cache is modified.
func (m *Manager) RemoveFromMember(ctx context.Context, guildID, userID, roleID string) error {
	return m.f.Exec(ctx, dispatch.Workload{
		Class: dispatch.Delete,
		Type:  dispatch.DeleteGuildMemberRole,
		Path:  memberRolePath(guildID, userID, roleID),
	})
}

// Insert caches r as a role of guildID.
func (m *Manager) Insert(ctx context.Context, guildID string, r *discordgo.Role) error {
	if err := m.f.Insert(ctx, r); err != nil {
		return err
	}
	m.guild.Put(r.ID, guildID)
	return nil
}

// Remove evicts the role and reports whether it was cached.
func (m *Manager) Remove(ctx context.Context, roleID string) (bool, error) {
	m.guild.Delete(roleID)
	return m.f.Remove(ctx, roleID)
}

// BulkInsert caches every role of a guild in one step.
func (m *Manager) BulkInsert(ctx context.Context, guildID string, roles []*discordgo.Role) (int, error) {
	index := make(map[string]string, len(roles))
	for _, r := range roles {
		if r != nil && r.ID != "" {
			index[r.ID] = guildID
		}
	}
	m.guild.Merge(index)
	return m.f.BulkInsert(ctx, roles)
}

// RemoveGuild evicts every cached role of a guild and returns how many were
// removed.
func (m *Manager) RemoveGuild(guildID string) int {
	n := m.f.Store().DeleteFunc(func(id string, _ *discordgo.Role) bool {
		g, ok := m.guild.Get(id)
		return ok && g == guildID
	})
	m.guild.DeleteFunc(func(_ string, g string) bool { return g == guildID })
	return n
}

// Len returns the number of cached roles.
func (m *Manager) Len() int { return m.f.Store().Len() }
