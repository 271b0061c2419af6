// Package idgen issues ticket identifiers.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"

	"github.com/timbang-id/timbang/internal/domain"
)

// Generator wraps a snowflake node. Ids from one node are unique and
// increase with time, so ordering by id matches creation order.
type Generator struct {
	node *snowflake.Node
}

// New creates a generator for the given station node (0-1023).
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// NextTicketID returns a fresh ticket id.
func (g *Generator) NextTicketID() domain.TicketID {
	return domain.TicketID(g.node.Generate().Int64())
}
