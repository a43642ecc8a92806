package plugins

import (
	"arbor/internal/application/lifecycle"
	"arbor/internal/domain"
)

// Folder groups other nodes and carries no entity data
func Folder() lifecycle.Registration {
	return lifecycle.Registration{
		Metadata: domain.EntityMetadata{NodeType: TypeFolder},
	}
}
