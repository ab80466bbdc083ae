// Package notifybus adapts the in-process events.Bus to the core's
// narrower UpdateBus contract.
package notifybus

import (
	"fmt"

	"github.com/mantonx/cdscore/internal/events"
)

// Adapter satisfies cds.UpdateBus by publishing container-changed
// events onto an events.Bus.
type Adapter struct {
	bus events.Bus
}

// New wraps bus as a cds.UpdateBus.
func New(bus events.Bus) *Adapter {
	return &Adapter{bus: bus}
}

func (a *Adapter) ContainerChanged(id int64) error {
	event := events.NewEventWithData(events.EventContainerChanged, "cds", "container changed", fmt.Sprintf("container %d changed", id), map[string]interface{}{"id": id})
	return a.bus.PublishAsync(event)
}

func (a *Adapter) ContainersChanged(ids []int64) error {
	for _, id := range ids {
		if err := a.ContainerChanged(id); err != nil {
			return err
		}
	}
	return nil
}
