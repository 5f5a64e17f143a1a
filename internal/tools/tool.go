// Package tools maps the closed set of tool names onto executors and runs them
// under a time bound, converting every executor failure into an error result.
package tools

import "fmt"

// ToolID identifies one of the tools the gateway serves.
type ToolID int

const (
	SearchEntities ToolID = iota + 1
	GetEntity
	GetEntityDetails
	ListRelatedEntities
)

// All lists every tool in display order.
var All = []ToolID{SearchEntities, GetEntity, GetEntityDetails, ListRelatedEntities}

// Names returns the wire names of every tool.
func Names() []string {
	out := make([]string, len(All))
	for i, id := range All {
		out[i] = id.String()
	}
	return out
}

// ParseToolID resolves a wire name. Unknown names return *UnknownToolError.
func ParseToolID(name string) (ToolID, error) {
	switch name {
	case "search_entities":
		return SearchEntities, nil
	case "get_entity":
		return GetEntity, nil
	case "get_entity_details":
		return GetEntityDetails, nil
	case "list_related_entities":
		return ListRelatedEntities, nil
	default:
		return 0, &UnknownToolError{Name: name}
	}
}

func (id ToolID) String() string {
	switch id {
	case SearchEntities:
		return "search_entities"
	case GetEntity:
		return "get_entity"
	case GetEntityDetails:
		return "get_entity_details"
	case ListRelatedEntities:
		return "list_related_entities"
	default:
		return fmt.Sprintf("ToolID(%d)", int(id))
	}
}

// Description is a one-line summary shown in tool listings.
func (id ToolID) Description() string {
	switch id {
	case SearchEntities:
		return "Search registry entities by name, optionally filtered by type."
	case GetEntity:
		return "Fetch a single entity by id."
	case GetEntityDetails:
		return "Fetch an entity with its attributes and immediate relations."
	case ListRelatedEntities:
		return "List entities related to a given entity, optionally by relation type."
	default:
		return ""
	}
}

// UnknownToolError reports a tool name outside the closed set.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}
