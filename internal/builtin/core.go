// Package builtin provides the "builtin.core" bundle every bot loads:
// help, ping and the plugins admin commands.
package builtin

import (
	"time"

	"github.com/keshon/commandbot/internal/plugin"
	"github.com/keshon/commandbot/pkg/cmd"
)

// Locator is the catalog name of the core bundle.
const Locator = "builtin.core"

// Core is the core bundle. The plugins commands are guarded by the admin
// check passed as the first load argument; without one nobody may use them.
type Core struct {
	plugin.Base
	admin   cmd.Check
	started time.Time
}

// New builds the core bundle. args[0], if present, must be a cmd.Check.
func New(h plugin.Host, args ...any) (plugin.Bundle, error) {
	c := &Core{
		Base:    plugin.NewBase("Core", h),
		admin:   cmd.OwnerOnly(),
		started: time.Now(),
	}
	if len(args) > 0 {
		if check, ok := args[0].(cmd.Check); ok {
			c.admin = check
		}
	}
	return c, nil
}

// Source lists the bundle types of builtin.core.
func Source() []*plugin.Type {
	return []*plugin.Type{{Name: "Core", New: New}}
}

// Register adds builtin.core to cat.
func Register(cat *plugin.Catalog) error {
	return cat.Register(Locator, Source)
}

// Commands implements plugin.Bundle.
func (c *Core) Commands() []*cmd.Command {
	return []*cmd.Command{c.helpCommand(), c.pingCommand(), c.pluginsCommand()}
}
