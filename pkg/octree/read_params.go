package octree

// ReadParams carries the parameters a tree passes down while it decodes
// element data out of a packet. Element decoders use what they need and
// must leave the rest untouched.
type ReadParams struct {
	// ClockSkew, in microseconds, is added to timestamps read from the
	// packet to move them into the receiver's view of the authoritative
	// clock.
	ClockSkew int64

	// SourceID identifies the node the packet came from.
	SourceID uint16

	// WantColor and WantExistsBits mirror the voxel tree's read flags.
	WantColor      bool
	WantExistsBits bool
}
