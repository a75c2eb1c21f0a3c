package proxy

import (
	"github.com/syssam/ospace"
)

// Interceptor intercepts a lazy-loaded getter. It receives the proxy and the
// value already read from the base field and reports whether that value may
// be returned as is; false means a load ran and the field must be read again.
type Interceptor func(proxy any, value any) bool

// CapabilityTable holds the hooks shared by every instance of one proxy type.
// It is filled exactly once, before the first instance is created.
type CapabilityTable struct {
	sealed       bool
	interceptors map[string]Interceptor
	resetFK      func(proxy any)
	compareBytes func(a, b []byte) bool
}

// NewCapabilityTable returns an empty, unsealed table.
func NewCapabilityTable() *CapabilityTable {
	return &CapabilityTable{}
}

// Finalize assigns the hooks and seals the table. A sealed table cannot be
// assigned again.
func (c *CapabilityTable) Finalize(interceptors map[string]Interceptor, resetFK func(proxy any), compareBytes func(a, b []byte) bool) error {
	if c.sealed {
		return ospace.NewGenerationError("", "finalize", "capability table is already sealed", nil)
	}
	if compareBytes == nil {
		compareBytes = BytesEqual
	}
	c.interceptors = interceptors
	c.resetFK = resetFK
	c.compareBytes = compareBytes
	c.sealed = true
	return nil
}

// Sealed reports whether Finalize ran.
func (c *CapabilityTable) Sealed() bool { return c.sealed }

// Intercepts reports whether an interceptor is installed for member.
func (c *CapabilityTable) Intercepts(member string) bool {
	return c.interceptors[member] != nil
}
