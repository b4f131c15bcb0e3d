package conveyor

import "github.com/xraph/conveyor/id"

// ID is the identifier type for generated jids and wids.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
