// Package availability answers whether the sources a session asked for are
// currently enabled on the platform.
package availability

import (
	"log"

	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/sink"
)

// Lister is the part of the location service the checker needs.
type Lister interface {
	EnabledProviders() []string
}

// Checker is stateless; every query goes to the platform.
type Checker struct {
	platform Lister
}

func New(platform Lister) *Checker {
	return &Checker{platform: platform}
}

// Enabled returns the requestable sources that are enabled right now.
func (c *Checker) Enabled() position.SourceMask {
	var m position.SourceMask
	for _, name := range c.platform.EnabledProviders() {
		m |= position.MaskOf(position.KindFromName(name))
	}
	return m
}

// IsAnyAvailable reports whether at least one source in mask is enabled.
func (c *Checker) IsAnyAvailable(mask position.SourceMask) bool {
	return c.Enabled()&mask != 0
}

// OnSourceDisabled handles a disabled transition of kind for the session
// identified by handle. When mask includes kind and none of the requested
// sources remain enabled, out is told that every source is gone. The
// session itself stays registered and resumes once a source comes back.
// It reports whether the callback fired.
func (c *Checker) OnSourceDisabled(handle position.Handle, mask position.SourceMask, kind position.SourceKind, out sink.Sink) bool {
	log.Printf("[availability h=%d] provider disabled: %s", handle, kind)
	if !mask.Has(kind) {
		return false
	}
	if c.IsAnyAvailable(mask) {
		return false
	}
	out.SourcesAllDisabled(handle)
	return true
}
