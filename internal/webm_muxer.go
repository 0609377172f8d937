package internal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// TrackConfig は単一ビデオトラックの設定
type TrackConfig struct {
	CodecID         string
	Width           int
	Height          int
	ColourSpace     string // V_UNCOMPRESSED のFourCC
	DefaultDuration int64  // ns
	Duration        float64
}

const maxClusterSpanMs = 1000

// MatroskaMuxer は1本のビデオトラックをMatroska/WebMに多重化する
// クラスタはメモリ上に組み立ててからサイズ付きで書き出す
type MatroskaMuxer struct {
	bufWriter *bufio.Writer
	counter   *countingWriter
	seeker    io.WriteSeeker
	docType   string
	appName   string

	segmentSizeAt int64 // セグメントのサイズフィールドのオフセット
	segmentStart  int64 // セグメント本体の先頭オフセット

	trackNum      uint64
	cluster       bytes.Buffer
	clusterTime   uint64
	clusterOpen   bool
	headerWritten bool
	closed        bool
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// NewMatroskaMuxer は新しいMatroskaMuxerを作成する。docTypeは"matroska"か"webm"
// wがシーク可能ならCloseでセグメントサイズを書き戻す
func NewMatroskaMuxer(w io.Writer, docType string) *MatroskaMuxer {
	m := &MatroskaMuxer{docType: docType, appName: "go-vapoursynth", trackNum: 1}
	var base int64
	if ws, ok := w.(io.WriteSeeker); ok {
		if pos, err := ws.Seek(0, io.SeekCurrent); err == nil {
			m.seeker = ws
			base = pos
		}
	}
	m.counter = &countingWriter{w: w, n: base}
	m.bufWriter = bufio.NewWriterSize(m.counter, 1024*1024)
	return m
}

func (m *MatroskaMuxer) offset() int64 {
	return m.counter.n + int64(m.bufWriter.Buffered())
}

// WriteHeader はEBMLヘッダー、Segment、Info、Tracksを書き込む
func (m *MatroskaMuxer) WriteHeader(track TrackConfig) error {
	if m.headerWritten {
		return fmt.Errorf("matroska: header already written")
	}
	if _, err := m.bufWriter.Write(ebmlHeader(m.docType)); err != nil {
		return fmt.Errorf("failed to write EBML header: %w", err)
	}

	if err := writeEBMLID(m.bufWriter, segmentID); err != nil {
		return fmt.Errorf("failed to write segment header: %w", err)
	}
	m.segmentSizeAt = m.offset()
	if _, err := m.bufWriter.Write(unknownSize); err != nil {
		return fmt.Errorf("failed to write segment header: %w", err)
	}
	m.segmentStart = m.offset()

	if err := m.writeInfo(track); err != nil {
		return fmt.Errorf("failed to write info: %w", err)
	}
	if err := m.writeTracks(track); err != nil {
		return fmt.Errorf("failed to write tracks: %w", err)
	}
	if err := m.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush headers: %w", err)
	}
	m.headerWritten = true
	return nil
}

func (m *MatroskaMuxer) writeInfo(track TrackConfig) error {
	info := &bytes.Buffer{}

	// TimecodeScale (1ms = 1000000ns)
	if err := writeEBMLElement(info, timecodeScaleID, encodeUInt(1000000)); err != nil {
		return err
	}
	if err := writeEBMLElement(info, muxingAppID, []byte(m.appName)); err != nil {
		return err
	}
	if err := writeEBMLElement(info, writingAppID, []byte(m.appName)); err != nil {
		return err
	}
	if track.Duration > 0 {
		if err := writeEBMLElement(info, durationID, encodeFloat(track.Duration)); err != nil {
			return err
		}
	}
	return writeEBMLElement(m.bufWriter, infoID, info.Bytes())
}

func (m *MatroskaMuxer) writeTracks(track TrackConfig) error {
	entry := &bytes.Buffer{}
	if err := writeEBMLElement(entry, trackNumberID, encodeUInt(m.trackNum)); err != nil {
		return err
	}
	if err := writeEBMLElement(entry, trackUIDID, encodeUInt(m.trackNum)); err != nil {
		return err
	}
	if err := writeEBMLElement(entry, trackTypeID, []byte{trackTypeVideo}); err != nil {
		return err
	}
	if err := writeEBMLElement(entry, codecIDID, []byte(track.CodecID)); err != nil {
		return err
	}
	if track.DefaultDuration > 0 {
		if err := writeEBMLElement(entry, defaultDurationID, encodeUInt(uint64(track.DefaultDuration))); err != nil {
			return err
		}
	}

	video := &bytes.Buffer{}
	if err := writeEBMLElement(video, pixelWidthID, encodeUInt(uint64(track.Width))); err != nil {
		return err
	}
	if err := writeEBMLElement(video, pixelHeightID, encodeUInt(uint64(track.Height))); err != nil {
		return err
	}
	if track.ColourSpace != "" {
		if err := writeEBMLElement(video, colourSpaceID, []byte(track.ColourSpace)); err != nil {
			return err
		}
		if err := writeEBMLElement(video, bitsPerChannelID, encodeUInt(8)); err != nil {
			return err
		}
	}
	if err := writeEBMLElement(entry, videoID, video.Bytes()); err != nil {
		return err
	}

	tracks := &bytes.Buffer{}
	if err := writeEBMLElement(tracks, trackEntryID, entry.Bytes()); err != nil {
		return err
	}
	return writeEBMLElement(m.bufWriter, tracksID, tracks.Bytes())
}

// WriteBlock はSimpleBlockを追加する
// キーフレームか、クラスタ開始から1秒を超えたら新しいクラスタを始める
func (m *MatroskaMuxer) WriteBlock(data []byte, timecodeMs uint64, keyframe bool) error {
	if !m.headerWritten {
		return fmt.Errorf("matroska: header not written")
	}
	if !m.clusterOpen || keyframe || timecodeMs-m.clusterTime > maxClusterSpanMs {
		if err := m.flushCluster(); err != nil {
			return fmt.Errorf("failed to write cluster: %w", err)
		}
		m.clusterTime = timecodeMs
		m.clusterOpen = true
		if err := writeEBMLElement(&m.cluster, timecodeID, encodeUInt(timecodeMs)); err != nil {
			return err
		}
	}

	block := &bytes.Buffer{}
	if err := writeVarInt(block, m.trackNum); err != nil {
		return fmt.Errorf("failed to write track number: %w", err)
	}
	// Timecode (relative to cluster)
	relativeTime := int16(timecodeMs - m.clusterTime)
	if err := binary.Write(block, binary.BigEndian, relativeTime); err != nil {
		return fmt.Errorf("failed to write timecode: %w", err)
	}
	flags := byte(0)
	if keyframe {
		flags |= 0x80
	}
	block.WriteByte(flags)
	block.Write(data)

	if err := writeEBMLElement(&m.cluster, simpleBlockID, block.Bytes()); err != nil {
		return fmt.Errorf("failed to write simple block: %w", err)
	}
	return nil
}

func (m *MatroskaMuxer) flushCluster() error {
	if !m.clusterOpen {
		return nil
	}
	m.clusterOpen = false
	err := writeEBMLElement(m.bufWriter, clusterID, m.cluster.Bytes())
	m.cluster.Reset()
	return err
}

// Close は残りのクラスタを書き出し、可能ならセグメントサイズを確定する
func (m *MatroskaMuxer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if !m.headerWritten {
		return m.bufWriter.Flush()
	}
	if err := m.flushCluster(); err != nil {
		return fmt.Errorf("failed to write cluster: %w", err)
	}
	if err := m.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush final data: %w", err)
	}
	if m.seeker == nil {
		return nil
	}

	end := m.counter.n
	if _, err := m.seeker.Seek(m.segmentSizeAt, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to segment size: %w", err)
	}
	if _, err := m.seeker.Write(sizeVarInt8(uint64(end - m.segmentStart))); err != nil {
		return fmt.Errorf("failed to write segment size: %w", err)
	}
	_, err := m.seeker.Seek(end, io.SeekStart)
	return err
}
