package app

import (
	"github.com/vk/promptgrid/internal/registry"
	"github.com/vk/promptgrid/modules/a1111"
)

// coreModules is the definitive list of all adapter protocols that are
// compiled into the promptgrid binary.
var coreModules = []registry.Module{
	&a1111.Module{},
}
