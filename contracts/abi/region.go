// Package abi implements the host side of the WASM contract ABI
// (spec.md §4.5): the host function namespaces a guest module imports
// (storage, crypto, env, contract, subcall), bounds-checked access to
// guest linear memory, and the gas pricing table that charges for each
// call.
package abi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/oasisprotocol/oasis-core-rofl/wasm/engine"
)

// MaxRegionLength bounds a single Region's length, independent of gas
// cost, so a malicious guest can't force an unbounded host-side
// allocation by lying about a region's size in a way gas alone would
// only punish after the fact.
const MaxRegionLength = 16 * 1024 * 1024

// ErrRegionTooLarge is returned when a guest-declared region exceeds
// MaxRegionLength.
var ErrRegionTooLarge = errors.New("abi: region exceeds maximum length")

// Region mirrors the 12-byte struct the guest ABI's allocate/deallocate
// convention uses to describe a buffer living in linear memory: every
// pointer crossing the host/guest boundary actually points at one of
// these, not at the data directly.
type Region struct {
	Offset   uint32
	Capacity uint32
	Length   uint32
}

// ReadRegion loads the Region header at ptr and returns the length
// bytes of guest memory it describes.
func ReadRegion(mem engine.Memory, ptr uint32) ([]byte, Region, error) {
	hdr, err := mem.Read(ptr, 12)
	if err != nil {
		return nil, Region{}, fmt.Errorf("abi: read region header at %d: %w", ptr, err)
	}
	r := Region{
		Offset:   binary.LittleEndian.Uint32(hdr[0:4]),
		Capacity: binary.LittleEndian.Uint32(hdr[4:8]),
		Length:   binary.LittleEndian.Uint32(hdr[8:12]),
	}
	if r.Length > MaxRegionLength {
		return nil, r, ErrRegionTooLarge
	}
	if r.Length > r.Capacity {
		return nil, r, fmt.Errorf("abi: region length %d exceeds capacity %d", r.Length, r.Capacity)
	}
	data, err := mem.Read(r.Offset, r.Length)
	if err != nil {
		return nil, r, fmt.Errorf("abi: read region data: %w", err)
	}
	return data, r, nil
}

// WriteToRegion writes data into the guest buffer described by the
// Region header at ptr, updating the header's Length field. It fails if
// data does not fit within the region's declared Capacity — the guest
// must pre-allocate a large enough buffer (typically by calling its own
// "allocate" export before invoking the host function).
func WriteToRegion(mem engine.Memory, ptr uint32, data []byte) error {
	if len(data) > MaxRegionLength {
		return ErrRegionTooLarge
	}
	hdr, err := mem.Read(ptr, 12)
	if err != nil {
		return fmt.Errorf("abi: read region header at %d: %w", ptr, err)
	}
	offset := binary.LittleEndian.Uint32(hdr[0:4])
	capacity := binary.LittleEndian.Uint32(hdr[4:8])
	if uint32(len(data)) > capacity {
		return fmt.Errorf("abi: data length %d exceeds region capacity %d", len(data), capacity)
	}
	if err := mem.Write(offset, data); err != nil {
		return fmt.Errorf("abi: write region data: %w", err)
	}
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(data)))
	return mem.Write(ptr, hdr)
}

// AllocateAndWrite calls the guest's "allocate" export for len(data)
// bytes, writes data into the returned region, and returns the region
// pointer a host function should hand back to the guest as its result.
func AllocateAndWrite(ctx CallContext, inst engine.Instance, data []byte) (uint32, error) {
	if len(data) > MaxRegionLength {
		return 0, ErrRegionTooLarge
	}
	res, err := inst.Call(ctx.Ctx, "allocate", uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("abi: guest allocate failed: %w", err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("abi: guest allocate returned %d results, want 1", len(res))
	}
	ptr := uint32(res[0])
	if err := WriteToRegion(inst.Memory(), ptr, data); err != nil {
		return 0, err
	}
	return ptr, nil
}
