package lamparray

// AttributeModel provides the static device and per-lamp attributes.
type AttributeModel interface {
	// DeviceAttributes returns the same value for the lifetime of the process.
	DeviceAttributes() DeviceAttributes

	// LampAttributes returns the attributes of one lamp. Callers guarantee
	// id < DeviceAttributes().LampCount.
	LampAttributes(id uint16) LampAttributes
}

// BackingStore renders lamp colors. The engine validates every index before
// calling SetItem, so implementations do not need to.
type BackingStore interface {
	// Enable switches between the device's own animation (false) and host
	// driven writes (true). Must be idempotent.
	Enable(on bool)

	// SetItem stages the color of one lamp.
	SetItem(index uint16, color LampColor)

	// Flush commits staged writes; called once after a batch marked complete.
	Flush()
}

// NopBacking is a BackingStore that discards everything.
type NopBacking struct{}

func (NopBacking) Enable(bool)               {}
func (NopBacking) SetItem(uint16, LampColor) {}
func (NopBacking) Flush()                    {}
