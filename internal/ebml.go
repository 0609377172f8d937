package internal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Matroska (MKV) EBML IDs
const (
	ebmlHeaderID  = 0x1A45DFA3
	segmentID     = 0x18538067
	infoID        = 0x1549A966
	tracksID      = 0x1654AE6B
	clusterID     = 0x1F43B675
	timecodeID    = 0xE7
	simpleBlockID = 0xA3

	// Info elements
	timecodeScaleID = 0x2AD7B1
	muxingAppID     = 0x4D80
	writingAppID    = 0x5741
	durationID      = 0x4489

	// Track elements
	trackEntryID      = 0xAE
	trackNumberID     = 0xD7
	trackUIDID        = 0x73C5
	trackTypeID       = 0x83
	codecIDID         = 0x86
	defaultDurationID = 0x23E383
	videoID           = 0xE0
	pixelWidthID      = 0xB0
	pixelHeightID     = 0xBA
	colourSpaceID     = 0x2EB524
	bitsPerChannelID  = 0x55B2

	// Track types
	trackTypeVideo = 0x01
)

// unknownSize はサイズ未確定の要素に使う8バイトのVarInt
var unknownSize = []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func ebmlHeader(docType string) []byte {
	body := &bytes.Buffer{}
	_ = writeEBMLElement(body, 0x4286, encodeUInt(1)) // EBMLVersion
	_ = writeEBMLElement(body, 0x42F7, encodeUInt(1)) // EBMLReadVersion
	_ = writeEBMLElement(body, 0x42F2, encodeUInt(4)) // EBMLMaxIDLength
	_ = writeEBMLElement(body, 0x42F3, encodeUInt(8)) // EBMLMaxSizeLength
	_ = writeEBMLElement(body, 0x4282, []byte(docType))
	_ = writeEBMLElement(body, 0x4287, encodeUInt(4)) // DocTypeVersion
	_ = writeEBMLElement(body, 0x4285, encodeUInt(2)) // DocTypeReadVersion

	header := &bytes.Buffer{}
	_ = writeEBMLElement(header, ebmlHeaderID, body.Bytes())
	return header.Bytes()
}

func writeEBMLElement(w io.Writer, id uint32, data []byte) error {
	if err := writeEBMLID(w, id); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func writeEBMLID(w io.Writer, id uint32) error {
	if id <= 0xFF {
		_, err := w.Write([]byte{byte(id)})
		return err
	} else if id <= 0xFFFF {
		return binary.Write(w, binary.BigEndian, uint16(id))
	} else if id <= 0xFFFFFF {
		_, err := w.Write([]byte{byte(id >> 16), byte(id >> 8), byte(id)})
		return err
	}
	return binary.Write(w, binary.BigEndian, id)
}

// writeVarInt は最短のEBML VarIntを書き込む。全ビット1はunknownと衝突するので避ける
func writeVarInt(w io.Writer, n uint64) error {
	for length := 1; length <= 8; length++ {
		if n < (1<<(7*uint(length)))-1 {
			buf := make([]byte, length)
			for i := length - 1; i >= 0; i-- {
				buf[i] = byte(n)
				n >>= 8
			}
			buf[0] |= 0x80 >> uint(length-1)
			_, err := w.Write(buf)
			return err
		}
	}
	return fmt.Errorf("VarInt too large: %d", n)
}

// sizeVarInt8 はnを8バイト固定長のVarIntにする（後からサイズを書き戻す用）
func sizeVarInt8(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	buf[0] = 0x01
	return buf
}

func encodeUInt(n uint64) []byte {
	if n == 0 {
		return []byte{0}
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	i := 0
	for buf[i] == 0 {
		i++
	}
	return buf[i:]
}

func encodeFloat(f float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(f))
	return buf
}
