package particles

import (
	"encoding/binary"
	"math"

	"github.com/cfoust/particles/pkg/octree"
	"github.com/cfoust/particles/pkg/packet"
)

// Particle records are little-endian with no padding:
//
//	id u32 | lastEdited u64 | position 3xf32 | radius f32 | color 3xu8 |
//	velocity 3xf32 | gravity 3xf32 | damping f32 | inHand u8 |
//	script length u16 | script bytes
//
// Edit records insert the creator token (u32) after the id. An edit
// message is a command byte, a u16 record count and the records, so the
// lastEdited of a record starting at offset r lives at r+8.
const (
	idBytes        = 4
	tokenBytes     = 4
	timestampBytes = 8
	vectorBytes    = 12
	floatBytes     = 4
	colorBytes     = 3
	flagBytes      = 1
	lengthBytes    = 2

	bodyBytes = vectorBytes + floatBytes + colorBytes + vectorBytes + vectorBytes + floatBytes + flagBytes + lengthBytes

	recordBytes     = idBytes + timestampBytes + bodyBytes
	editRecordBytes = idBytes + tokenBytes + timestampBytes + bodyBytes

	// EditMessageHeaderBytes is the command byte plus the record count.
	EditMessageHeaderBytes = 1 + 2
	// EditLastEditedOffset is where lastEdited sits inside an edit record.
	EditLastEditedOffset = idBytes + tokenBytes

	MaxScriptLength = math.MaxUint16
)

// ExpectedBytes is the size of one particle record without its script.
func ExpectedBytes() int {
	return recordBytes
}

// ExpectedEditMessageBytes is the size of an edit message holding one
// record without its script.
func ExpectedEditMessageBytes() int {
	return EditMessageHeaderBytes + editRecordBytes
}

func appendBody(packetData *octree.PacketData, d *Detail) bool {
	return packetData.AppendVector(d.Position) &&
		packetData.AppendFloat(d.Radius) &&
		packetData.AppendBytes(d.Color[:]) &&
		packetData.AppendVector(d.Velocity) &&
		packetData.AppendVector(d.Gravity) &&
		packetData.AppendFloat(d.Damping) &&
		packetData.AppendBool(d.InHand) &&
		packetData.AppendUint16(uint16(len(d.UpdateScript))) &&
		packetData.AppendBytes([]byte(d.UpdateScript))
}

// AppendParticleData writes the particle's record to packetData. Either
// the whole record is written or nothing is.
func (p *Particle) AppendParticleData(packetData *octree.PacketData) bool {
	if len(p.updateScript) > MaxScriptLength {
		return false
	}
	if packetData.Remaining() < recordBytes+len(p.updateScript) {
		return false
	}

	detail := p.Detail()
	detail.ID = p.id

	level := packetData.StartLevel()
	success := packetData.AppendUint32(detail.ID) &&
		packetData.AppendUint64(detail.LastEdited) &&
		appendBody(packetData, &detail)
	if !success {
		packetData.DiscardLevel(level)
	}

	return success
}

func appendEditRecord(packetData *octree.PacketData, d *Detail) bool {
	if len(d.UpdateScript) > MaxScriptLength {
		return false
	}

	level := packetData.StartLevel()
	success := packetData.AppendUint32(d.ID) &&
		packetData.AppendUint32(d.CreatorTokenID) &&
		packetData.AppendUint64(d.LastEdited) &&
		appendBody(packetData, d)
	if !success {
		packetData.DiscardLevel(level)
	}

	return success
}

func readBody(buffer *octree.Buffer, d *Detail) bool {
	var ok bool
	if d.Position, ok = buffer.GetVector(); !ok {
		return false
	}
	if d.Radius, ok = buffer.GetFloat(); !ok {
		return false
	}
	color, ok := buffer.GetBytes(colorBytes)
	if !ok {
		return false
	}
	copy(d.Color[:], color)
	if d.Velocity, ok = buffer.GetVector(); !ok {
		return false
	}
	if d.Gravity, ok = buffer.GetVector(); !ok {
		return false
	}
	if d.Damping, ok = buffer.GetFloat(); !ok {
		return false
	}
	if d.InHand, ok = buffer.GetBool(); !ok {
		return false
	}
	if d.UpdateScript, ok = buffer.GetString(); !ok {
		return false
	}
	return true
}

func readRecord(buffer *octree.Buffer, edit bool) (Detail, bool) {
	d := Detail{CreatorTokenID: UnknownToken}

	var ok bool
	if d.ID, ok = buffer.GetUint32(); !ok {
		return d, false
	}
	if edit {
		if d.CreatorTokenID, ok = buffer.GetUint32(); !ok {
			return d, false
		}
	}
	if d.LastEdited, ok = buffer.GetUint64(); !ok {
		return d, false
	}
	if !readBody(buffer, &d) {
		return d, false
	}

	return d, d.valid()
}

// valid rejects values no particle may hold. Damping is not checked here
// because it is clamped when applied.
func (d *Detail) valid() bool {
	return validRadius(d.Radius) &&
		d.Position.IsFinite() &&
		d.Velocity.IsFinite() &&
		d.Gravity.IsFinite() &&
		!math.IsNaN(float64(d.Damping))
}

func (p *Particle) applyDetail(d *Detail) {
	p.id = d.ID
	p.position = d.Position
	p.radius = d.Radius
	p.color = d.Color
	p.velocity = d.Velocity
	p.gravity = d.Gravity
	p.damping = clampDamping(d.Damping)
	p.inHand = d.InHand
	p.updateScript = d.UpdateScript
	p.lastEdited = max(p.lastEdited, d.LastEdited)
	p.lastUpdated = max(p.lastUpdated, d.LastEdited)
}

func applySkew(timestamp uint64, skew int64) uint64 {
	return timestamp + uint64(skew)
}

// ReadParticleDataFromBuffer decodes one particle record from data and
// returns the number of bytes it used. It returns 0 and leaves the
// particle alone if the record is truncated or holds invalid values. A
// record older than what the particle already has is consumed but not
// applied.
func (p *Particle) ReadParticleDataFromBuffer(data []byte, args *octree.ReadParams) int {
	buffer := octree.Buffer(data)
	detail, ok := readRecord(&buffer, false)
	if !ok {
		return 0
	}
	consumed := len(data) - buffer.Len()

	if args != nil {
		detail.LastEdited = applySkew(detail.LastEdited, args.ClockSkew)
	}

	if detail.LastEdited < p.lastEdited {
		return consumed
	}

	p.applyDetail(&detail)
	p.provisional = false
	return consumed
}

// FromEditPacket creates a particle from the edit record at the start of
// data and returns it with the number of bytes used. Records for new
// particles get an id from factory and keep their creator token so the
// creating node can be told which id it got.
func FromEditPacket(data []byte, factory *Factory) (*Particle, int) {
	buffer := octree.Buffer(data)
	detail, ok := readRecord(&buffer, true)
	if !ok {
		return nil, 0
	}

	p, err := factory.FromDetail(detail)
	if err != nil {
		return nil, 0
	}

	return p, len(data) - buffer.Len()
}

// FromParticleData creates a particle the receiver has not seen before
// from a particle data record.
func (f *Factory) FromParticleData(data []byte, args *octree.ReadParams) (*Particle, int) {
	buffer := octree.Buffer(data)
	detail, ok := readRecord(&buffer, false)
	if !ok {
		return nil, 0
	}
	if args != nil {
		detail.LastEdited = applySkew(detail.LastEdited, args.ClockSkew)
	}
	detail.CreatorTokenID = UnknownToken

	p, err := f.FromDetail(detail)
	if err != nil {
		return nil, 0
	}
	return p, len(data) - buffer.Len()
}

// FromDetail builds a particle from a detail, such as one decoded from an
// edit record or restored from a snapshot.
func (f *Factory) FromDetail(d Detail) (*Particle, error) {
	if !validRadius(d.Radius) {
		return nil, ErrInvalidRadius
	}
	if !d.valid() {
		return nil, ErrInvalidVector
	}

	clock := f.clock()
	now := clock.Now()
	p := &Particle{
		created:        now,
		lastUpdated:    now,
		creatorTokenID: d.CreatorTokenID,
		clock:          clock,
	}
	p.applyDetail(&d)

	if d.ID == NewParticle {
		p.id = f.IDs.Next()
		p.provisional = !f.Authoritative
		p.newlyCreated = true
	}

	return p, nil
}

// EncodeParticleEditMessageDetails packs command, a record count and as
// many whole records as fit into out. It returns the bytes written, the
// number of records written and whether all of details fit; callers send
// the rest in another message.
func EncodeParticleEditMessageDetails(command packet.Type, details []Detail, out []byte) (size int, count int, ok bool) {
	if len(out) < EditMessageHeaderBytes {
		return 0, 0, len(details) == 0
	}

	packetData := octree.NewPacketDataFrom(out)
	packetData.AppendByte(byte(command))
	packetData.AppendUint16(0)

	for i := range details {
		if count == math.MaxUint16 || !appendEditRecord(packetData, &details[i]) {
			break
		}
		count++
	}

	binary.LittleEndian.PutUint16(out[1:3], uint16(count))
	return packetData.Len(), count, count == len(details)
}

// ReadEditMessageDetails decodes the records of an edit message without
// building particles. It returns the details decoded before any malformed
// record and false if it hit one.
func ReadEditMessageDetails(data []byte) (packet.Type, []Detail, bool) {
	if len(data) < EditMessageHeaderBytes {
		return 0, nil, false
	}

	command := packet.Type(data[0])
	count := int(binary.LittleEndian.Uint16(data[1:3]))
	buffer := octree.Buffer(data[EditMessageHeaderBytes:])

	result := make([]Detail, 0, count)
	for i := 0; i < count; i++ {
		detail, ok := readRecord(&buffer, true)
		if !ok {
			return command, result, false
		}
		result = append(result, detail)
	}

	return command, result, true
}

// ReadEditMessage decodes every record of an edit message. It returns the
// particles decoded before any malformed record and false if it hit one.
func ReadEditMessage(data []byte, factory *Factory) (packet.Type, []*Particle, bool) {
	command, details, ok := ReadEditMessageDetails(data)

	result := make([]*Particle, 0, len(details))
	for _, detail := range details {
		p, err := factory.FromDetail(detail)
		if err != nil {
			return command, result, false
		}
		result = append(result, p)
	}

	return command, result, ok
}

// AdjustEditPacketForClockSkew adds skew microseconds to the lastEdited
// field of every record in an encoded edit message, in place and without
// decoding the records. It returns the number of records patched and stops
// at the first record that runs past the end of buffer.
func AdjustEditPacketForClockSkew(buffer []byte, skew int64) int {
	if len(buffer) < EditMessageHeaderBytes || !packet.Type(buffer[0]).IsEdit() {
		return 0
	}

	count := int(binary.LittleEndian.Uint16(buffer[1:3]))
	offset := EditMessageHeaderBytes
	patched := 0

	for i := 0; i < count; i++ {
		fixedEnd := offset + editRecordBytes
		if fixedEnd > len(buffer) {
			break
		}

		scriptLength := int(binary.LittleEndian.Uint16(buffer[fixedEnd-lengthBytes : fixedEnd]))
		if fixedEnd+scriptLength > len(buffer) {
			break
		}

		at := buffer[offset+EditLastEditedOffset : offset+EditLastEditedOffset+timestampBytes]
		binary.LittleEndian.PutUint64(at, applySkew(binary.LittleEndian.Uint64(at), skew))

		offset = fixedEnd + scriptLength
		patched++
	}

	return patched
}

// EncodeAddResponse builds the message an authoritative source sends to
// tell a node which id its pending particle received.
func EncodeAddResponse(creatorTokenID, id uint32) []byte {
	packetData := octree.NewPacketData(1 + tokenBytes + idBytes)
	packetData.AppendByte(byte(packet.ParticleAddResponse))
	packetData.AppendUint32(creatorTokenID)
	packetData.AppendUint32(id)
	return packetData.Bytes()
}

func DecodeAddResponse(data []byte) (creatorTokenID uint32, id uint32, ok bool) {
	buffer := octree.Buffer(data)
	command, ok := buffer.GetByte()
	if !ok || packet.Type(command) != packet.ParticleAddResponse {
		return 0, 0, false
	}
	if creatorTokenID, ok = buffer.GetUint32(); !ok {
		return 0, 0, false
	}
	if id, ok = buffer.GetUint32(); !ok {
		return 0, 0, false
	}
	return creatorTokenID, id, true
}

// EncodeEraseMessage packs as many ids as fit into out, in the same
// split-on-overflow manner as edit messages.
func EncodeEraseMessage(ids []uint32, out []byte) (size int, count int, ok bool) {
	if len(out) < EditMessageHeaderBytes {
		return 0, 0, len(ids) == 0
	}

	packetData := octree.NewPacketDataFrom(out)
	packetData.AppendByte(byte(packet.ParticleErase))
	packetData.AppendUint16(0)

	for _, id := range ids {
		if count == math.MaxUint16 || !packetData.AppendUint32(id) {
			break
		}
		count++
	}

	binary.LittleEndian.PutUint16(out[1:3], uint16(count))
	return packetData.Len(), count, count == len(ids)
}

func DecodeEraseMessage(data []byte) ([]uint32, bool) {
	buffer := octree.Buffer(data)
	command, ok := buffer.GetByte()
	if !ok || packet.Type(command) != packet.ParticleErase {
		return nil, false
	}
	count, ok := buffer.GetUint16()
	if !ok {
		return nil, false
	}

	ids := make([]uint32, 0, count)
	for i := 0; i < int(count); i++ {
		id, ok := buffer.GetUint32()
		if !ok {
			return ids, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
