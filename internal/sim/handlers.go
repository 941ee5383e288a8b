package sim

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/genba/labjackgo/internal/frame"
	"github.com/genba/labjackgo/internal/modbus"
)

const (
	cmdPing     = 0x70
	cmdReset    = 0x99
	cmdConfig   = 0x01 // extended command byte of the comm config read
	idleTimeout = 30 * time.Second
)

// commandLen derives a native frame's total length from its first bytes.
func commandLen(hdr []byte) int {
	if frame.IsExtended(hdr) {
		return 6 + 2*int(hdr[2])
	}
	return 2 + 2*int(hdr[1]&0x07)
}

func (d *Device) serveCommands(conn net.Conn) {
	hdr := make([]byte, 3)
	for d.ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if _, err := io.ReadFull(conn, hdr[:2]); err != nil {
			d.logReadErr(conn, err)
			return
		}
		need := 2
		if frame.IsExtended(hdr[:2]) {
			if _, err := io.ReadFull(conn, hdr[2:3]); err != nil {
				d.logReadErr(conn, err)
				return
			}
			need = 3
		}
		total := commandLen(hdr[:need])
		cmd := make([]byte, total)
		copy(cmd, hdr[:need])
		if _, err := io.ReadFull(conn, cmd[need:]); err != nil {
			d.logReadErr(conn, err)
			return
		}
		d.commands.Add(1)
		d.log.LogHex("emulator command rx", cmd)

		resp := d.answerCommand(cmd)
		if resp == nil {
			continue
		}
		if _, err := conn.Write(resp); err != nil {
			d.log.Verbose("command write to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// validChecksum also accepts the short ping and reset frames, which carry
// only the 8-bit checksum.
func validChecksum(cmd []byte) bool {
	if len(cmd) >= frame.MinFrameSize {
		return frame.VerifyChecksum(cmd)
	}
	tmp := append([]byte(nil), cmd...)
	frame.Checksum8(tmp, len(tmp))
	return tmp[0] == cmd[0]
}

func (d *Device) answerCommand(cmd []byte) []byte {
	if !validChecksum(cmd) {
		return frame.BadChecksumSentinel[:]
	}
	switch {
	case cmd[1] == cmdPing:
		return []byte{cmdPing, cmdPing}
	case cmd[1] == cmdReset:
		d.resets.Add(1)
		resp := []byte{0, cmdReset, 0x00, 0x00}
		frame.Checksum8(resp, len(resp))
		return resp
	case frame.IsExtended(cmd) && cmd[3] == cmdConfig:
		return d.ident
	}
	d.log.Debug("unhandled command % X", cmd[:4])
	return nil
}

// serveStream pushes numbered stream packets until the peer goes away.
func (d *Device) serveStream(conn net.Conn) {
	ticker := time.NewTicker(d.cfg.StreamInterval)
	defer ticker.Stop()
	var counter byte
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}
		pkt := make([]byte, 46)
		pkt[1], pkt[2], pkt[3] = 0xF9, 0x14, 0xC0
		pkt[10] = counter
		counter++
		if err := frame.ApplyChecksum(pkt); err != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := conn.Write(pkt); err != nil {
			return
		}
	}
}

func (d *Device) serveRegisters(conn net.Conn) {
	hdr := make([]byte, modbus.MBAPHeaderSize)
	for d.ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if _, err := io.ReadFull(conn, hdr); err != nil {
			d.logReadErr(conn, err)
			return
		}
		length := int(binary.BigEndian.Uint16(hdr[4:6]))
		if length < 2 || length > modbus.MaxPDUSize+1 {
			d.log.Verbose("bad MBAP length %d from %s", length, conn.RemoteAddr())
			return
		}
		frameBuf := make([]byte, modbus.MBAPHeaderSize+length-1)
		copy(frameBuf, hdr)
		if _, err := io.ReadFull(conn, frameBuf[modbus.MBAPHeaderSize:]); err != nil {
			d.logReadErr(conn, err)
			return
		}
		d.registers.Add(1)

		if d.drop.Load() > 0 {
			d.drop.Add(-1)
			d.log.Verbose("dropping register connection from %s", conn.RemoteAddr())
			return
		}
		if d.badChecksum.Load() > 0 {
			d.badChecksum.Add(-1)
			if _, err := conn.Write(frame.BadChecksumSentinel[:]); err != nil {
				return
			}
			continue
		}

		req, err := modbus.DecodeRequestTCP(frameBuf)
		if err != nil {
			d.log.Verbose("decode register request: %v", err)
			return
		}
		resp := d.store.HandleRequest(req)
		if _, err := conn.Write(modbus.EncodeResponseTCP(resp)); err != nil {
			return
		}
	}
}

func (d *Device) logReadErr(conn net.Conn, err error) {
	if errors.Is(err, io.EOF) || d.ctx.Err() != nil {
		return
	}
	d.log.Verbose("read from %s: %v", conn.RemoteAddr(), err)
}
