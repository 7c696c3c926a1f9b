package codec

import "encoding/binary"

// Nak is the NAK reply payload: a single reason byte.
type Nak struct {
	Reason NAKReason
}

func (n Nak) Encode() []byte { return []byte{byte(n.Reason)} }

func DecodeNak(b []byte) (Nak, error) {
	if len(b) < 1 {
		return Nak{}, ErrShortBuffer
	}
	return Nak{Reason: NAKReason(b[0])}, nil
}

// Output is the OUT command payload.
type Output struct {
	OutputNo    byte
	ControlCode byte
	TmrCount    uint16
}

func (o Output) Encode() []byte {
	buf := make([]byte, 4)
	buf[0] = o.OutputNo
	buf[1] = o.ControlCode
	binary.LittleEndian.PutUint16(buf[2:], o.TmrCount)
	return buf
}

func DecodeOutput(b []byte) (Output, error) {
	if len(b) < 4 {
		return Output{}, ErrShortBuffer
	}
	return Output{
		OutputNo:    b[0],
		ControlCode: b[1],
		TmrCount:    binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

// LEDColorSet is one of the temporary or permanent color/timing
// groups inside an LED command.
type LEDColorSet struct {
	Control  byte
	OnCount  byte
	OffCount byte
	OnColor  byte
	OffColor byte
}

// LED is the LED command payload: a reader/LED selector, a temporary
// state (with its own timer), and a permanent state to fall back to.
type LED struct {
	Reader    byte
	LedNo     byte
	Temporary LEDColorSet
	TempTimer uint16
	Permanent LEDColorSet
}

func (l LED) Encode() []byte {
	buf := make([]byte, 14)
	buf[0] = l.Reader
	buf[1] = l.LedNo
	buf[2] = l.Temporary.Control
	buf[3] = l.Temporary.OnCount
	buf[4] = l.Temporary.OffCount
	buf[5] = l.Temporary.OnColor
	buf[6] = l.Temporary.OffColor
	binary.LittleEndian.PutUint16(buf[7:9], l.TempTimer)
	buf[9] = l.Permanent.Control
	buf[10] = l.Permanent.OnCount
	buf[11] = l.Permanent.OffCount
	buf[12] = l.Permanent.OnColor
	buf[13] = l.Permanent.OffColor
	return buf
}

func DecodeLED(b []byte) (LED, error) {
	if len(b) < 14 {
		return LED{}, ErrShortBuffer
	}
	return LED{
		Reader: b[0],
		LedNo:  b[1],
		Temporary: LEDColorSet{
			Control: b[2], OnCount: b[3], OffCount: b[4], OnColor: b[5], OffColor: b[6],
		},
		TempTimer: binary.LittleEndian.Uint16(b[7:9]),
		Permanent: LEDColorSet{
			Control: b[9], OnCount: b[10], OffCount: b[11], OnColor: b[12], OffColor: b[13],
		},
	}, nil
}

// Buzzer is the BUZ command payload.
type Buzzer struct {
	Reader   byte
	Tone     byte
	OnTime   byte
	OffTime  byte
	RepCount byte
}

func (b Buzzer) Encode() []byte {
	return []byte{b.Reader, b.Tone, b.OnTime, b.OffTime, b.RepCount}
}

func DecodeBuzzer(b []byte) (Buzzer, error) {
	if len(b) < 5 {
		return Buzzer{}, ErrShortBuffer
	}
	return Buzzer{Reader: b[0], Tone: b[1], OnTime: b[2], OffTime: b[3], RepCount: b[4]}, nil
}

// MaxTextLength is the maximum data length the TEXT command allows.
const MaxTextLength = 32

// Text is the TEXT command payload.
type Text struct {
	Reader   byte
	Cmd      byte
	TempTime byte
	Row      byte
	Col      byte
	Data     []byte
}

func (t Text) Encode() ([]byte, error) {
	if len(t.Data) > MaxTextLength {
		return nil, ErrFieldTooLong
	}
	buf := make([]byte, 6+len(t.Data))
	buf[0] = t.Reader
	buf[1] = t.Cmd
	buf[2] = t.TempTime
	buf[3] = t.Row
	buf[4] = t.Col
	buf[5] = byte(len(t.Data))
	copy(buf[6:], t.Data)
	return buf, nil
}

func DecodeText(b []byte) (Text, error) {
	if len(b) < 6 {
		return Text{}, ErrShortBuffer
	}
	length := int(b[5])
	if len(b) < 6+length {
		return Text{}, ErrShortBuffer
	}
	return Text{
		Reader: b[0], Cmd: b[1], TempTime: b[2], Row: b[3], Col: b[4],
		Data: append([]byte{}, b[6:6+length]...),
	}, nil
}

// ComSet is both the COMSET command and the COM reply payload: a new
// address and baud rate.
type ComSet struct {
	Address byte
	Baud    uint32
}

func (c ComSet) Encode() []byte {
	buf := make([]byte, 5)
	buf[0] = c.Address
	binary.LittleEndian.PutUint32(buf[1:], c.Baud)
	return buf
}

func DecodeComSet(b []byte) (ComSet, error) {
	if len(b) < 5 {
		return ComSet{}, ErrShortBuffer
	}
	return ComSet{Address: b[0], Baud: binary.LittleEndian.Uint32(b[1:5])}, nil
}

// MaxKeyLength is the maximum key material length the KEYSET command
// allows.
const MaxKeyLength = 16

// KeySet is the KEYSET command payload.
type KeySet struct {
	Type byte
	Data []byte
}

func (k KeySet) Encode() ([]byte, error) {
	if len(k.Data) > MaxKeyLength {
		return nil, ErrFieldTooLong
	}
	buf := make([]byte, 2+len(k.Data))
	buf[0] = k.Type
	buf[1] = byte(len(k.Data))
	copy(buf[2:], k.Data)
	return buf, nil
}

func DecodeKeySet(b []byte) (KeySet, error) {
	if len(b) < 2 {
		return KeySet{}, ErrShortBuffer
	}
	length := int(b[1])
	if len(b) < 2+length {
		return KeySet{}, ErrShortBuffer
	}
	return KeySet{Type: b[0], Data: append([]byte{}, b[2:2+length]...)}, nil
}

// PDID is the PDID reply payload: identity record. Vendor and serial
// are little-endian; firmware is the one big-endian exception the
// wire format carries.
type PDID struct {
	Vendor   [3]byte
	Model    byte
	Version  byte
	Serial   [4]byte
	Firmware [3]byte
}

func (p PDID) Encode() []byte {
	buf := make([]byte, 12)
	copy(buf[0:3], p.Vendor[:])
	buf[3] = p.Model
	buf[4] = p.Version
	copy(buf[5:9], p.Serial[:])
	copy(buf[9:12], p.Firmware[:])
	return buf
}

func DecodePDID(b []byte) (PDID, error) {
	if len(b) < 12 {
		return PDID{}, ErrShortBuffer
	}
	var p PDID
	copy(p.Vendor[:], b[0:3])
	p.Model = b[3]
	p.Version = b[4]
	copy(p.Serial[:], b[5:9])
	copy(p.Firmware[:], b[9:12])
	return p, nil
}

// Capability is one (function_code, compliance_level, num_items)
// triple inside a PDCAP reply.
type Capability struct {
	Code     byte
	Level    byte
	NumItems byte
}

func EncodeCapabilities(caps []Capability) []byte {
	buf := make([]byte, 0, 3*len(caps))
	for _, c := range caps {
		buf = append(buf, c.Code, c.Level, c.NumItems)
	}
	return buf
}

func DecodeCapabilities(b []byte) ([]Capability, error) {
	if len(b)%3 != 0 {
		return nil, ErrBadCapCount
	}
	caps := make([]Capability, 0, len(b)/3)
	for i := 0; i < len(b); i += 3 {
		caps = append(caps, Capability{Code: b[i], Level: b[i+1], NumItems: b[i+2]})
	}
	return caps, nil
}

// Well-known capability function codes referenced by the CP when
// interpreting a PDCAP reply.
const (
	CapCommunicationSecurity      byte = 0x02
	CapReceiveBufferSize          byte = 0x03
	CapLargestCombinedMessageSize byte = 0x04
)

// Mfg is the MFG command / MFGREP reply payload.
type Mfg struct {
	Vendor [3]byte
	Data   []byte
}

func (m Mfg) Encode() []byte {
	buf := make([]byte, 3+len(m.Data))
	copy(buf[0:3], m.Vendor[:])
	copy(buf[3:], m.Data)
	return buf
}

func DecodeMfg(b []byte) (Mfg, error) {
	if len(b) < 3 {
		return Mfg{}, ErrShortBuffer
	}
	var m Mfg
	copy(m.Vendor[:], b[0:3])
	m.Data = append([]byte{}, b[3:]...)
	return m, nil
}

// RawFormat enumerates the card-data encodings a RAW reply can carry.
type RawFormat byte

const (
	RawUnspecified RawFormat = 0
	RawWiegand     RawFormat = 1
	RawASCII       RawFormat = 2
)

// Raw is the RAW reply payload: raw card/credential data.
type Raw struct {
	Reader   byte
	Format   RawFormat
	BitCount uint16
	Data     []byte
}

func (r Raw) Encode() []byte {
	byteLen := (int(r.BitCount) + 7) / 8
	buf := make([]byte, 4+byteLen)
	buf[0] = r.Reader
	buf[1] = byte(r.Format)
	binary.LittleEndian.PutUint16(buf[2:4], r.BitCount)
	copy(buf[4:], r.Data)
	return buf
}

func DecodeRaw(b []byte) (Raw, error) {
	if len(b) < 4 {
		return Raw{}, ErrShortBuffer
	}
	bitCount := binary.LittleEndian.Uint16(b[2:4])
	byteLen := (int(bitCount) + 7) / 8
	if len(b) < 4+byteLen {
		return Raw{}, ErrShortBuffer
	}
	return Raw{
		Reader: b[0], Format: RawFormat(b[1]), BitCount: bitCount,
		Data: append([]byte{}, b[4:4+byteLen]...),
	}, nil
}

// Challenge is the CHLNG command payload.
type Challenge struct {
	CPRandom [8]byte
}

func (c Challenge) Encode() []byte { return append([]byte{}, c.CPRandom[:]...) }

func DecodeChallenge(b []byte) (Challenge, error) {
	if len(b) < 8 {
		return Challenge{}, ErrShortBuffer
	}
	var c Challenge
	copy(c.CPRandom[:], b[0:8])
	return c, nil
}

// CCrypt is the CCRYPT reply payload.
type CCrypt struct {
	PDClientUID  [8]byte
	PDRandom     [8]byte
	PDCryptogram [16]byte
}

func (c CCrypt) Encode() []byte {
	buf := make([]byte, 32)
	copy(buf[0:8], c.PDClientUID[:])
	copy(buf[8:16], c.PDRandom[:])
	copy(buf[16:32], c.PDCryptogram[:])
	return buf
}

func DecodeCCrypt(b []byte) (CCrypt, error) {
	if len(b) < 32 {
		return CCrypt{}, ErrShortBuffer
	}
	var c CCrypt
	copy(c.PDClientUID[:], b[0:8])
	copy(c.PDRandom[:], b[8:16])
	copy(c.PDCryptogram[:], b[16:32])
	return c, nil
}

// SCrypt is the SCRYPT command payload.
type SCrypt struct {
	CPCryptogram [16]byte
}

func (s SCrypt) Encode() []byte { return append([]byte{}, s.CPCryptogram[:]...) }

func DecodeSCrypt(b []byte) (SCrypt, error) {
	if len(b) < 16 {
		return SCrypt{}, ErrShortBuffer
	}
	var s SCrypt
	copy(s.CPCryptogram[:], b[0:16])
	return s, nil
}

// RMacI is the RMAC_I reply payload.
type RMacI struct {
	RMAC [16]byte
}

func (r RMacI) Encode() []byte { return append([]byte{}, r.RMAC[:]...) }

func DecodeRMacI(b []byte) (RMacI, error) {
	if len(b) < 16 {
		return RMacI{}, ErrShortBuffer
	}
	var r RMacI
	copy(r.RMAC[:], b[0:16])
	return r, nil
}

// FileTransfer is the FILETRANSFER command payload.
type FileTransfer struct {
	Type   byte
	Size   uint32
	Offset uint32
	Data   []byte
}

func (f FileTransfer) Encode() []byte {
	buf := make([]byte, 11+len(f.Data))
	buf[0] = f.Type
	binary.LittleEndian.PutUint32(buf[1:5], f.Size)
	binary.LittleEndian.PutUint32(buf[5:9], f.Offset)
	binary.LittleEndian.PutUint16(buf[9:11], uint16(len(f.Data)))
	copy(buf[11:], f.Data)
	return buf
}

func DecodeFileTransfer(b []byte) (FileTransfer, error) {
	if len(b) < 11 {
		return FileTransfer{}, ErrShortBuffer
	}
	length := binary.LittleEndian.Uint16(b[9:11])
	if len(b) < 11+int(length) {
		return FileTransfer{}, ErrShortBuffer
	}
	return FileTransfer{
		Type:   b[0],
		Size:   binary.LittleEndian.Uint32(b[1:5]),
		Offset: binary.LittleEndian.Uint32(b[5:9]),
		Data:   append([]byte{}, b[11:11+int(length)]...),
	}, nil
}

// FTStatusControl bits carried in an FTSTAT reply's control byte.
const (
	FTStatusPermissionDenied byte = 0x01 << iota
)

// FTStatus is the FTSTAT reply payload.
type FTStatus struct {
	Control byte
	DelayMS uint16
	Status  int16
}

func (f FTStatus) Encode() []byte {
	buf := make([]byte, 5)
	buf[0] = f.Control
	binary.LittleEndian.PutUint16(buf[1:3], f.DelayMS)
	binary.LittleEndian.PutUint16(buf[3:5], uint16(f.Status))
	return buf
}

func DecodeFTStatus(b []byte) (FTStatus, error) {
	if len(b) < 5 {
		return FTStatus{}, ErrShortBuffer
	}
	return FTStatus{
		Control: b[0],
		DelayMS: binary.LittleEndian.Uint16(b[1:3]),
		Status:  int16(binary.LittleEndian.Uint16(b[3:5])),
	}, nil
}

// StatusReport is the shared shape of LSTATR/ISTATR/OSTATR/RSTATR:
// one byte per reported entry.
type StatusReport struct {
	Entries []byte
}

func (s StatusReport) Encode() []byte { return append([]byte{}, s.Entries...) }

func DecodeStatusReport(b []byte) StatusReport {
	return StatusReport{Entries: append([]byte{}, b...)}
}

// Keypad is the KEYPAD reply payload: raw key codes from a reader.
type Keypad struct {
	Reader  byte
	KeyData []byte
}

func (k Keypad) Encode() []byte {
	buf := make([]byte, 2+len(k.KeyData))
	buf[0] = k.Reader
	buf[1] = byte(len(k.KeyData))
	copy(buf[2:], k.KeyData)
	return buf
}

func DecodeKeypad(b []byte) (Keypad, error) {
	if len(b) < 2 {
		return Keypad{}, ErrShortBuffer
	}
	length := int(b[1])
	if len(b) < 2+length {
		return Keypad{}, ErrShortBuffer
	}
	return Keypad{Reader: b[0], KeyData: append([]byte{}, b[2:2+length]...)}, nil
}
