package lamparray

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Report IDs of the LampArray collection.
const (
	ReportAttributes         uint8 = 0x01
	ReportAttributesRequest  uint8 = 0x02
	ReportAttributesResponse uint8 = 0x03
	ReportMultiUpdate        uint8 = 0x04
	ReportRangeUpdate        uint8 = 0x05
	ReportControl            uint8 = 0x06
)

// Body sizes in bytes, excluding the leading report ID.
const (
	AttributesSize         = 22 // u16 + 5*u32
	AttributesRequestSize  = 2
	AttributesResponseSize = 28 // u16 + 5*i32 + 4*u8 + u8 + u8
	MultiUpdateSize        = 2 + MaxMultiUpdateLamps*2 + MaxMultiUpdateLamps*4
	RangeUpdateSize        = 9 // u8 + 2*u16 + 4*u8
	ControlSize            = 1
)

var (
	// ErrShortReport is returned when a report body is smaller than its layout.
	ErrShortReport = errors.New("lamparray: report too short")

	// ErrUnknownReport is returned for report IDs the handler does not serve.
	ErrUnknownReport = errors.New("lamparray: unknown report id")
)

// ReportName returns a human-readable name for a report ID.
func ReportName(id uint8) string {
	switch id {
	case ReportAttributes:
		return "LampArrayAttributes"
	case ReportAttributesRequest:
		return "LampAttributesRequest"
	case ReportAttributesResponse:
		return "LampAttributesResponse"
	case ReportMultiUpdate:
		return "LampMultiUpdate"
	case ReportRangeUpdate:
		return "LampRangeUpdate"
	case ReportControl:
		return "LampArrayControl"
	default:
		return fmt.Sprintf("0x%02X", id)
	}
}

func putColor(b []byte, c LampColor) {
	b[0] = c.Red
	b[1] = c.Green
	b[2] = c.Blue
	b[3] = c.Intensity
}

func getColor(b []byte) LampColor {
	return LampColor{Red: b[0], Green: b[1], Blue: b[2], Intensity: b[3]}
}

func checkSize(id uint8, body []byte, size int) error {
	if len(body) < size {
		return fmt.Errorf("%s: need %d bytes, have %d: %w", ReportName(id), size, len(body), ErrShortReport)
	}
	return nil
}

// EncodeAttributes builds a LampArrayAttributesReport including its ID.
func EncodeAttributes(a DeviceAttributes) []byte {
	buf := make([]byte, 1+AttributesSize)
	buf[0] = ReportAttributes
	b := buf[1:]
	binary.LittleEndian.PutUint16(b[0:2], a.LampCount)
	binary.LittleEndian.PutUint32(b[2:6], a.Bounds.Width)
	binary.LittleEndian.PutUint32(b[6:10], a.Bounds.Height)
	binary.LittleEndian.PutUint32(b[10:14], a.Bounds.Depth)
	binary.LittleEndian.PutUint32(b[14:18], uint32(a.Kind))
	binary.LittleEndian.PutUint32(b[18:22], a.UpdateInterval)
	return buf
}

// DecodeAttributes parses a LampArrayAttributesReport body.
func DecodeAttributes(body []byte) (DeviceAttributes, error) {
	if err := checkSize(ReportAttributes, body, AttributesSize); err != nil {
		return DeviceAttributes{}, err
	}
	return DeviceAttributes{
		LampCount: binary.LittleEndian.Uint16(body[0:2]),
		Bounds: Bounds{
			Width:  binary.LittleEndian.Uint32(body[2:6]),
			Height: binary.LittleEndian.Uint32(body[6:10]),
			Depth:  binary.LittleEndian.Uint32(body[10:14]),
		},
		Kind:           Kind(binary.LittleEndian.Uint32(body[14:18])),
		UpdateInterval: binary.LittleEndian.Uint32(body[18:22]),
	}, nil
}

// EncodeAttributesResponse builds a LampAttributesResponseReport including its ID.
func EncodeAttributesResponse(a LampAttributes) []byte {
	buf := make([]byte, 1+AttributesResponseSize)
	buf[0] = ReportAttributesResponse
	b := buf[1:]
	binary.LittleEndian.PutUint16(b[0:2], a.LampID)
	binary.LittleEndian.PutUint32(b[2:6], uint32(a.Position.X))
	binary.LittleEndian.PutUint32(b[6:10], uint32(a.Position.Y))
	binary.LittleEndian.PutUint32(b[10:14], uint32(a.Position.Z))
	binary.LittleEndian.PutUint32(b[14:18], uint32(a.UpdateLatency))
	binary.LittleEndian.PutUint32(b[18:22], uint32(a.Purposes))
	putColor(b[22:26], a.Levels)
	if a.IsProgrammable {
		b[26] = 1
	}
	b[27] = a.InputBinding
	return buf
}

// DecodeAttributesResponse parses a LampAttributesResponseReport body.
func DecodeAttributesResponse(body []byte) (LampAttributes, error) {
	if err := checkSize(ReportAttributesResponse, body, AttributesResponseSize); err != nil {
		return LampAttributes{}, err
	}
	return LampAttributes{
		LampID: binary.LittleEndian.Uint16(body[0:2]),
		Position: Position{
			X: int32(binary.LittleEndian.Uint32(body[2:6])),
			Y: int32(binary.LittleEndian.Uint32(body[6:10])),
			Z: int32(binary.LittleEndian.Uint32(body[10:14])),
		},
		UpdateLatency:  int32(binary.LittleEndian.Uint32(body[14:18])),
		Purposes:       Purpose(int32(binary.LittleEndian.Uint32(body[18:22]))),
		Levels:         getColor(body[22:26]),
		IsProgrammable: body[26] != 0,
		InputBinding:   body[27],
	}, nil
}

// EncodeAttributesRequest builds a LampAttributesRequestReport including its ID.
func EncodeAttributesRequest(lampID uint16) []byte {
	buf := make([]byte, 1+AttributesRequestSize)
	buf[0] = ReportAttributesRequest
	binary.LittleEndian.PutUint16(buf[1:3], lampID)
	return buf
}

// DecodeAttributesRequest parses a LampAttributesRequestReport body.
func DecodeAttributesRequest(body []byte) (uint16, error) {
	if err := checkSize(ReportAttributesRequest, body, AttributesRequestSize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(body[0:2]), nil
}

// EncodeRangeUpdate builds a LampRangeUpdateReport including its ID.
func EncodeRangeUpdate(r RangeUpdate) []byte {
	buf := make([]byte, 1+RangeUpdateSize)
	buf[0] = ReportRangeUpdate
	b := buf[1:]
	b[0] = uint8(r.Flags)
	binary.LittleEndian.PutUint16(b[1:3], r.Start)
	binary.LittleEndian.PutUint16(b[3:5], r.End)
	putColor(b[5:9], r.Color)
	return buf
}

// DecodeRangeUpdate parses a LampRangeUpdateReport body.
func DecodeRangeUpdate(body []byte) (RangeUpdate, error) {
	if err := checkSize(ReportRangeUpdate, body, RangeUpdateSize); err != nil {
		return RangeUpdate{}, err
	}
	return RangeUpdate{
		Flags: UpdateFlags(body[0]),
		Start: binary.LittleEndian.Uint16(body[1:3]),
		End:   binary.LittleEndian.Uint16(body[3:5]),
		Color: getColor(body[5:9]),
	}, nil
}

// EncodeMultiUpdate builds a LampMultiUpdateReport including its ID.
// All eight slots are written regardless of Count.
func EncodeMultiUpdate(m MultiUpdate) []byte {
	buf := make([]byte, 1+MultiUpdateSize)
	buf[0] = ReportMultiUpdate
	b := buf[1:]
	b[0] = m.Count
	b[1] = uint8(m.Flags)
	off := 2
	for i := 0; i < MaxMultiUpdateLamps; i++ {
		binary.LittleEndian.PutUint16(b[off:off+2], m.IDs[i])
		off += 2
	}
	for i := 0; i < MaxMultiUpdateLamps; i++ {
		putColor(b[off:off+4], m.Colors[i])
		off += 4
	}
	return buf
}

// DecodeMultiUpdate parses a LampMultiUpdateReport body. Count is returned as
// sent; the engine decides whether it is acceptable.
func DecodeMultiUpdate(body []byte) (MultiUpdate, error) {
	if err := checkSize(ReportMultiUpdate, body, MultiUpdateSize); err != nil {
		return MultiUpdate{}, err
	}
	m := MultiUpdate{
		Count: body[0],
		Flags: UpdateFlags(body[1]),
	}
	off := 2
	for i := 0; i < MaxMultiUpdateLamps; i++ {
		m.IDs[i] = binary.LittleEndian.Uint16(body[off : off+2])
		off += 2
	}
	for i := 0; i < MaxMultiUpdateLamps; i++ {
		m.Colors[i] = getColor(body[off : off+4])
		off += 4
	}
	return m, nil
}

// EncodeControl builds a LampArrayControlReport including its ID.
func EncodeControl(autonomous bool) []byte {
	buf := []byte{ReportControl, 0}
	if autonomous {
		buf[1] = 1
	}
	return buf
}

// DecodeControl parses a LampArrayControlReport body. Any non-zero value
// means autonomous.
func DecodeControl(body []byte) (bool, error) {
	if err := checkSize(ReportControl, body, ControlSize); err != nil {
		return false, err
	}
	return body[0] != 0, nil
}
