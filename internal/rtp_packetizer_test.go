package internal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pion/rtp"
)

func TestVP8Packetizer(t *testing.T) {
	p := NewVP8Packetizer(0x1234)
	frame := make([]byte, 2*(MaxRTPPayload-1)+100)
	for i := range frame {
		frame[i] = byte(i)
	}

	packets := p.Packetize(frame, 1000)
	if len(packets) != 3 {
		t.Fatalf("got %d packets, want 3", len(packets))
	}
	var joined []byte
	for i, pkt := range packets {
		if pkt.SSRC != 0x1234 || pkt.PayloadType != VP8PayloadType || pkt.Timestamp != 90000 {
			t.Errorf("packet %d header %+v", i, pkt.Header)
		}
		if pkt.SequenceNumber != uint16(i) {
			t.Errorf("packet %d has sequence %d", i, pkt.SequenceNumber)
		}
		if pkt.Marker != (i == 2) {
			t.Errorf("packet %d marker = %v", i, pkt.Marker)
		}
		wantDescriptor := byte(0)
		if i == 0 {
			wantDescriptor = 0x10
		}
		if pkt.Payload[0] != wantDescriptor {
			t.Errorf("packet %d descriptor %#x", i, pkt.Payload[0])
		}
		if len(pkt.Payload) > MaxRTPPayload {
			t.Errorf("packet %d payload %d bytes", i, len(pkt.Payload))
		}
		joined = append(joined, pkt.Payload[1:]...)
	}
	if !bytes.Equal(joined, frame) {
		t.Fatal("payloads do not reassemble to the frame")
	}

	// シーケンス番号はフレームをまたいで続く
	next := p.Packetize([]byte{1, 2, 3}, 1040)
	if len(next) != 1 || next[0].SequenceNumber != 3 || next[0].Timestamp != 93600 || !next[0].Marker {
		t.Fatalf("second frame packet %+v", next[0].Header)
	}
	if got := p.Packetize(nil, 0); len(got) != 0 {
		t.Fatalf("empty frame produced %d packets", len(got))
	}
}

func TestVP8PacketizerWriteError(t *testing.T) {
	p := NewVP8Packetizer(1)
	calls := 0
	sent, err := p.PacketizeAndWrite(make([]byte, 3000), 0, func(*rtp.Packet) error {
		calls++
		if calls == 2 {
			return errors.New("closed")
		}
		return nil
	})
	if err == nil || sent != 1 {
		t.Fatalf("PacketizeAndWrite = %d, %v", sent, err)
	}
}
