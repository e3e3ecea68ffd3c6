package emu

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
)

// Snapshot layout: 4-byte magic, big-endian uint16 version, big-endian uint32
// ROM hash, then a gob body with the per-component state blobs. ROM bytes are
// not part of the snapshot; Deserialize refuses images taken from a different
// ROM. There is no migration: any version mismatch is an error.
const (
	snapshotMagic   = "DMG1"
	snapshotVersion = uint16(1)
	snapshotHdrLen  = 4 + 2 + 4
)

type snapshotBody struct {
	CPU   []byte
	Bus   []byte
	Carry float64
}

// Serialize captures the complete machine state (§"DMG1" format). Host
// options are deliberately excluded.
func (m *Machine) Serialize() ([]byte, error) {
	if m.cpu == nil {
		return nil, ErrNoCartridge
	}
	var buf bytes.Buffer
	buf.WriteString(snapshotMagic)
	_ = binary.Write(&buf, binary.BigEndian, snapshotVersion)
	_ = binary.Write(&buf, binary.BigEndian, m.hash)
	if err := gob.NewEncoder(&buf).Encode(snapshotBody{
		CPU:   m.cpu.SaveState(),
		Bus:   m.bus.SaveState(),
		Carry: m.carry,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize restores a snapshot taken from the same ROM (by hash).
func (m *Machine) Deserialize(data []byte) error {
	if m.cpu == nil {
		return ErrNoCartridge
	}
	if len(data) < snapshotHdrLen || string(data[:4]) != snapshotMagic {
		return fmt.Errorf("%w: bad magic", ErrSnapshotVersionMismatch)
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version != snapshotVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSnapshotVersionMismatch, version, snapshotVersion)
	}
	hash := binary.BigEndian.Uint32(data[6:10])
	if hash != m.hash {
		return fmt.Errorf("%w: snapshot 0x%08X, loaded 0x%08X", ErrSnapshotROMMismatch, hash, m.hash)
	}
	var body snapshotBody
	if err := gob.NewDecoder(bytes.NewReader(data[snapshotHdrLen:])).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotVersionMismatch, err)
	}
	m.cpu.LoadState(body.CPU)
	m.bus.LoadState(body.Bus)
	m.carry = body.Carry
	if m.cpu.Faulted() {
		m.fault = fmt.Errorf("%w: %s", ErrInvalidInstruction, m.cpu.FaultInfo())
	} else {
		m.fault = nil
	}
	return nil
}
