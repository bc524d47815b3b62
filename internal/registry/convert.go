package registry

import "github.com/toolfleet/orchestrator/internal/toolserver"

// FromToolServerTools converts a tool-server manifest (already normalized
// by Session.ListTools) into the registry's Tool shape.
func FromToolServerTools(tools []toolserver.Tool) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}
