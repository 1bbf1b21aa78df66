package cache

// BandwidthManager tracks per-cache data-port and fill-port occupancy
// with one-cycle decrement, spec §4/§4.3.
type BandwidthManager struct {
	dataPortWidth int
	dataPortOccupied int
	fillPortOccupied int
}

// NewBandwidthManager builds a BandwidthManager. dataPortWidth of 0
// means unmetered (always available), matching caches whose DSL omits
// the trailing data-port-width field.
func NewBandwidthManager(dataPortWidth int) *BandwidthManager {
	return &BandwidthManager{dataPortWidth: dataPortWidth}
}

// UseDataPort consumes one data-port cycle for an access, spec §4.4
// "After dispatch, consume one data-port cycle for the access."
func (b *BandwidthManager) UseDataPort() {
	b.dataPortOccupied++
}

// UseFillPort consumes one fill-port cycle, spec §4.3 fill().
func (b *BandwidthManager) UseFillPort() {
	b.fillPortOccupied++
}

// DataPortFree reports whether a data-port cycle is available this
// cycle, for caches with a metered data port width.
func (b *BandwidthManager) DataPortFree() bool {
	if b.dataPortWidth <= 0 {
		return true
	}
	return b.dataPortOccupied < b.dataPortWidth
}

// FillPortFree reports whether a fill-port cycle is available.
func (b *BandwidthManager) FillPortFree() bool {
	return b.fillPortOccupied == 0
}

// Cycle decrements both occupancy counters by one, saturating at
// zero, spec §4.3 cycle().
func (b *BandwidthManager) Cycle() {
	if b.dataPortOccupied > 0 {
		b.dataPortOccupied--
	}
	if b.fillPortOccupied > 0 {
		b.fillPortOccupied--
	}
}
