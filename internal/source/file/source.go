// Package file reads captured frames from pcap and pcapng files.
package file

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/pktt/internal/core"
	"firestige.xyz/pktt/internal/filter"
	"firestige.xyz/pktt/internal/log"
	"firestige.xyz/pktt/internal/metrics"
)

// pcapngMagic is the block type of a pcapng section header.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// Format is the container format of a capture file.
type Format string

const (
	FormatPcap   Format = "pcap"
	FormatPcapNG Format = "pcapng"
)

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Source reads frames from a capture file in file order. It implements
// decoder.FrameSource.
type Source struct {
	path   string
	format Format
	file   *os.File
	reader packetReader
	ng     *pcapgo.NgReader
	link   layers.LinkType

	filter *filter.Filter
	log    log.Logger

	read     int
	filtered int
}

// Option configures a Source.
type Option func(*Source)

// WithFilter drops frames that do not match f before they are returned.
func WithFilter(f *filter.Filter) Option {
	return func(s *Source) { s.filter = f }
}

// WithLogger sets the logger; the process logger is used otherwise.
func WithLogger(l log.Logger) Option {
	return func(s *Source) { s.log = l }
}

// Open opens a pcap or pcapng file. The format is told from the file's
// magic number.
func Open(path string, opts ...Option) (*Source, error) {
	s := &Source{path: path, log: log.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}
	if err := s.init(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}
	s.file = f

	s.log.WithFields(map[string]interface{}{
		"path":      path,
		"format":    s.format,
		"link_type": s.LinkType().String(),
		"filter":    s.filterExpr(),
	}).Info("capture file opened")
	return s, nil
}

func (s *Source) init(r io.Reader) error {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return err
	}

	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return err
		}
		s.format, s.reader, s.ng, s.link = FormatPcapNG, ng, ng, ng.LinkType()
		return nil
	}

	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return err
	}
	s.format, s.reader, s.link = FormatPcap, pr, pr.LinkType()
	return nil
}

// ReadFrame returns the next frame that passes the filter, or io.EOF at
// the end of the file.
func (s *Source) ReadFrame() (core.RawFrame, error) {
	if s.reader == nil {
		return core.RawFrame{}, fmt.Errorf("capture file %s is closed", s.path)
	}
	for {
		data, ci, err := s.reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return core.RawFrame{}, io.EOF
		}
		if err != nil {
			return core.RawFrame{}, fmt.Errorf("failed to read packet %d: %w", s.read+1, err)
		}
		s.read++

		frame := core.RawFrame{
			Data:       data,
			Timestamp:  ci.Timestamp,
			LinkType:   s.linkTypeOf(ci),
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		}
		if s.filter == nil {
			return frame, nil
		}
		ok, err := s.filter.Match(frame)
		if err != nil {
			return core.RawFrame{}, err
		}
		if ok {
			return frame, nil
		}
		s.filtered++
		metrics.FramesFilteredTotal.Inc()
	}
}

// linkTypeOf returns the link type of the interface a pcapng packet was
// captured on.
func (s *Source) linkTypeOf(ci gopacket.CaptureInfo) core.LinkType {
	if s.ng != nil {
		if intf, err := s.ng.Interface(ci.InterfaceIndex); err == nil {
			return core.LinkType(intf.LinkType)
		}
	}
	return core.LinkType(s.link)
}

// LinkType returns the link type of the file, or of its first interface
// for pcapng.
func (s *Source) LinkType() core.LinkType { return core.LinkType(s.link) }

// Format returns the container format of the file.
func (s *Source) Format() Format { return s.format }

// Stats returns the number of frames read from the file and how many of
// them the filter dropped.
func (s *Source) Stats() (read, filtered int) { return s.read, s.filtered }

// Close closes the file. Further reads fail.
func (s *Source) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.reader, s.ng = nil, nil, nil

	s.log.WithFields(map[string]interface{}{
		"path":     s.path,
		"read":     s.read,
		"filtered": s.filtered,
	}).Debug("capture file closed")
	return err
}

func (s *Source) filterExpr() string {
	if s.filter == nil {
		return ""
	}
	return s.filter.String()
}
