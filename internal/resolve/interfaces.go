package resolve

// ChannelResolver maps channel IDs to names and back. MCP tool handlers take
// this interface so tests can substitute a fixed table.
type ChannelResolver interface {
	ChannelName(id string) string
	ChannelID(name string) (string, error)
}

var _ ChannelResolver = (*Resolver)(nil)
