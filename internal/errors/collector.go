package errors

import "sync"

// Collector gathers non-fatal errors, such as files skipped while building
// a catalog, so they can be reported together.
type Collector struct {
	errs  []error
	mutex sync.Mutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{errs: make([]error, 0)}
}

// Add records err. Nil errors are ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errs = append(c.errs, err)
}

// Errors returns a copy of the recorded errors in insertion order.
func (c *Collector) Errors() []error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	result := make([]error, len(c.errs))
	copy(result, c.errs)
	return result
}

// Len returns the number of recorded errors.
func (c *Collector) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.errs)
}
