package pcap

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWriterEmitsGlobalHeader(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf)
	require.NoError(t, err)
	require.Len(t, buf.Bytes(), 24)
	require.EqualValues(t, magicNumber, binary.LittleEndian.Uint32(buf.Bytes()[0:4]))
	require.EqualValues(t, linkTypeUser0, binary.LittleEndian.Uint32(buf.Bytes()[20:24]))
}

func TestCaptureAppendsRecordHeaderAndPayload(t *testing.T) {
	var buf bytes.Buffer
	fixedNow := time.Unix(1700000000, 123456000)
	w, err := newWriter(&buf, func() time.Time { return fixedNow })
	require.NoError(t, err)

	frame := []byte{0x53, 0x00, 0x01, 0x09, 0x00, 0x00, 0x60, 0x01, 0x02}
	w.Capture(frame)

	body := buf.Bytes()[24:]
	require.Len(t, body, 16+len(frame))
	require.EqualValues(t, fixedNow.Unix(), binary.LittleEndian.Uint32(body[0:4]))
	require.EqualValues(t, 123456, binary.LittleEndian.Uint32(body[4:8]))
	require.EqualValues(t, len(frame), binary.LittleEndian.Uint32(body[8:12]))
	require.EqualValues(t, len(frame), binary.LittleEndian.Uint32(body[12:16]))
	require.Equal(t, frame, body[16:16+len(frame)])
}

func TestCaptureTruncatesToSnaplen(t *testing.T) {
	var buf bytes.Buffer
	w, err := newWriter(&buf, time.Now)
	require.NoError(t, err)
	w.snaplen = 4

	w.Capture([]byte{1, 2, 3, 4, 5, 6})
	body := buf.Bytes()[24:]
	require.EqualValues(t, 4, binary.LittleEndian.Uint32(body[8:12]), "incl_len must respect snaplen")
	require.EqualValues(t, 6, binary.LittleEndian.Uint32(body[12:16]), "orig_len reports the true frame length")
	require.Len(t, body, 16+4)
}
