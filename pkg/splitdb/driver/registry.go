package driver

import (
	"sync"

	"github.com/pingcap/errors"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under name. Registering a name twice
// replaces the previous driver.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

func Get(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, errors.WithMessage(ErrDriverNotFound, name)
	}
	return d, nil
}

// CloseAll releases the resources of every registered driver that holds any,
// such as parked persistent connections.
func CloseAll() {
	driversMu.RLock()
	defer driversMu.RUnlock()
	for _, d := range drivers {
		if c, ok := d.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
