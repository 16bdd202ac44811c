package staking

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	recordVersion = 1

	headerSize = 1 + 4*common.AddressLength + 8 + 8 + 4 + 8
	// ClassRecordSize is the encoded size of one class slot.
	ClassRecordSize = common.AddressLength + 8 + 8
	// RecordSize is the fixed encoded size of a pool.
	RecordSize = headerSize + MaxClasses*ClassRecordSize
)

// MarshalBinary encodes the pool in its fixed-size layout. Dead slots are
// written as zeroes.
func (p *Pool) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	buf[0] = recordVersion
	off := 1
	for _, addr := range []common.Address{p.Address, p.Admin, p.Vault, p.Mint} {
		copy(buf[off:], addr.Bytes())
		off += common.AddressLength
	}
	binary.BigEndian.PutUint64(buf[off:], p.FeeNumerator)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], p.FeeDenominator)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], p.ClassCount)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], p.CreationCounter)
	off += 8

	for i := 0; i < int(p.ClassCount); i++ {
		class := p.Classes[i]
		slot := buf[off+i*ClassRecordSize:]
		copy(slot, class.Receipt.Bytes())
		binary.BigEndian.PutUint64(slot[common.AddressLength:], class.Supply)
		binary.BigEndian.PutUint64(slot[common.AddressLength+8:], class.Weight)
	}
	return buf, nil
}

// UnmarshalBinary decodes and validates a fixed-size pool record.
func (p *Pool) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("pool record size %d, want %d", len(data), RecordSize)
	}
	if data[0] != recordVersion {
		return fmt.Errorf("unsupported pool record version %d", data[0])
	}

	var decoded Pool
	off := 1
	for _, addr := range []*common.Address{&decoded.Address, &decoded.Admin, &decoded.Vault, &decoded.Mint} {
		*addr = common.BytesToAddress(data[off : off+common.AddressLength])
		off += common.AddressLength
	}
	decoded.FeeNumerator = binary.BigEndian.Uint64(data[off:])
	off += 8
	decoded.FeeDenominator = binary.BigEndian.Uint64(data[off:])
	off += 8
	decoded.ClassCount = binary.BigEndian.Uint32(data[off:])
	off += 4
	decoded.CreationCounter = binary.BigEndian.Uint64(data[off:])
	off += 8

	if decoded.FeeDenominator == 0 || decoded.FeeNumerator > decoded.FeeDenominator {
		return errorf(InvalidFee, "%d/%d", decoded.FeeNumerator, decoded.FeeDenominator)
	}
	if decoded.ClassCount > MaxClasses {
		return errorf(CapacityExceeded, "record holds %d classes", decoded.ClassCount)
	}
	if uint64(decoded.ClassCount) > decoded.CreationCounter {
		return fmt.Errorf("class count %d exceeds creation counter %d", decoded.ClassCount, decoded.CreationCounter)
	}

	seen := make(map[common.Address]struct{}, decoded.ClassCount)
	for i := 0; i < int(decoded.ClassCount); i++ {
		slot := data[off+i*ClassRecordSize:]
		class := Class{
			Receipt: common.BytesToAddress(slot[:common.AddressLength]),
			Supply:  binary.BigEndian.Uint64(slot[common.AddressLength:]),
			Weight:  binary.BigEndian.Uint64(slot[common.AddressLength+8:]),
		}
		if class.Receipt == (common.Address{}) {
			return errorf(InvalidIdentity, "empty receipt at slot %d", i)
		}
		if _, dup := seen[class.Receipt]; dup {
			return errorf(InvalidIdentity, "duplicate receipt %s", class.Receipt.Hex())
		}
		if class.Weight == 0 {
			return errorf(InvalidWeight, "zero weight at slot %d", i)
		}
		seen[class.Receipt] = struct{}{}
		decoded.Classes[i] = class
	}

	*p = decoded
	return nil
}
