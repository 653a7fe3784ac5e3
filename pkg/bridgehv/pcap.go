package bridgehv

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"
)

// pcapWriter writes the classic libpcap file format (a 24-byte global
// header followed by a 16-byte record header + payload per packet),
// enough for a capture file a real packet analyzer can open (spec §4.H
// Capture: "start_capture(path, dlt)" produces a pcap file at path).
type pcapWriter struct {
	mu sync.Mutex
	f  *os.File
}

const (
	pcapMagic       = 0xa1b2c3d4
	pcapVersionMaj  = 2
	pcapVersionMin  = 4
	pcapSnapLen     = 65535
	dltEN10MB       = 1 // DLT_EN10MB, the only data-link type this relay needs
)

func newPcapWriter(path string) (*pcapWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bridgehv: open capture file %s: %w", path, err)
	}
	hdr := make([]byte, 24)
	binary.LittleEndian.PutUint32(hdr[0:4], pcapMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], pcapVersionMaj)
	binary.LittleEndian.PutUint16(hdr[6:8], pcapVersionMin)
	binary.LittleEndian.PutUint32(hdr[16:20], pcapSnapLen)
	binary.LittleEndian.PutUint32(hdr[20:24], dltEN10MB)
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("bridgehv: write capture header: %w", err)
	}
	return &pcapWriter{f: f}, nil
}

func (p *pcapWriter) writePacket(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	now := time.Now()
	rec := make([]byte, 16)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(now.Unix()))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(now.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(data)))
	binary.LittleEndian.PutUint32(rec[12:16], uint32(len(data)))
	if _, err := p.f.Write(rec); err != nil {
		return err
	}
	_, err := p.f.Write(data)
	return err
}

func (p *pcapWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}
