package vm

import "math"

// Monitors are re-entrant and never block: contention yields ErrRetryLater
// and the caller re-executes the instruction on a later quantum.

func acquire(holder *uint32, count *uint16, tid uint32) error {
	switch {
	case *count == 0:
		*holder, *count = tid, 1
	case *holder == tid:
		if *count == math.MaxUint16 {
			return ErrInternal
		}
		*count++
	default:
		return ErrRetryLater
	}
	return nil
}

func release(holder *uint32, count *uint16, tid uint32) error {
	if *count == 0 || *holder != tid {
		return ErrMonitorState
	}
	*count--
	if *count == 0 {
		*holder = 0
	}
	return nil
}

func (v *VM) objectMonitor(h Handle, fn func(holder *uint32, count *uint16) error) error {
	if h == 0 {
		return ErrNullPointer
	}
	return v.withObject(h, func(b []byte) error {
		holder := le.Uint32(b[hdrMonOwner:])
		count := le.Uint16(b[hdrMonCount:])
		err := fn(&holder, &count)
		le.PutUint32(b[hdrMonOwner:], holder)
		le.PutUint16(b[hdrMonCount:], count)
		return err
	})
}

func (v *VM) monitorEnter(t *Thread, h Handle) error {
	return v.objectMonitor(h, func(holder *uint32, count *uint16) error {
		return acquire(holder, count, t.ID)
	})
}

func (v *VM) monitorExit(t *Thread, h Handle) error {
	return v.objectMonitor(h, func(holder *uint32, count *uint16) error {
		return release(holder, count, t.ID)
	})
}

func (v *VM) classMonitorEnter(t *Thread, c *Class) error {
	return acquire(&c.monHolder, &c.monCount, t.ID)
}

func (v *VM) classMonitorExit(t *Thread, c *Class) error {
	return release(&c.monHolder, &c.monCount, t.ID)
}

// MonitorState reports the holder thread and count of an object's monitor.
func (v *VM) MonitorState(h Handle) (holder uint32, count uint16) {
	v.withObject(h, func(b []byte) error {
		holder = le.Uint32(b[hdrMonOwner:])
		count = le.Uint16(b[hdrMonCount:])
		return nil
	})
	return holder, count
}
