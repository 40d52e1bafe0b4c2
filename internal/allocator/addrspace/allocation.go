package addrspace

import (
	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
)

// NextRegionBlock scans the country's range x ascending then y ascending
// and returns the first block that is neither occupied nor reserved.
func (s *Space) NextRegionBlock(country Country, occupied map[Block]bool) (Block, error) {
	if country.IsReserved {
		return Block{}, apperrors.NewValidationError(apperrors.DomainRegion, "country", "country is reserved and cannot hold regions").
			WithMetadata("country", country.Name)
	}

	for x := country.XStart; x <= country.XEnd; x++ {
		for y := 0; y < slotsPerX; y++ {
			b := Block{X: x, Y: y}
			if occupied[b] || s.reservedBlocks[b] {
				continue
			}
			return b, nil
		}
	}

	return Block{}, apperrors.NewRegionError(apperrors.ErrCodeCapacityExhausted, "no free /24 block in country range", false, nil).
		WithMetadata("country", country.Name).
		WithMetadata("x_start", country.XStart).
		WithMetadata("x_end", country.XEnd)
}

// NextHostOctets returns the lowest n free z values in 1..254. The whole
// set is computed before anything is returned so callers can reject a
// batch without partial writes.
func NextHostOctets(occupied map[int]bool, n int) ([]int, error) {
	if n < 1 {
		return nil, apperrors.NewValidationError(apperrors.DomainHost, "count", "count must be at least 1")
	}

	free := make([]int, 0, n)
	for z := 1; z <= hostsPerRegion && len(free) < n; z++ {
		if !occupied[z] {
			free = append(free, z)
		}
	}

	if len(free) < n {
		return nil, apperrors.NewHostError(apperrors.ErrCodeCapacityExhausted, "not enough free host addresses in region", false, nil).
			WithMetadata("requested", n).
			WithMetadata("available", len(free))
	}
	return free, nil
}

// FreeHostOctets counts unoccupied z values.
func FreeHostOctets(occupied map[int]bool) int {
	free := 0
	for z := 1; z <= hostsPerRegion; z++ {
		if !occupied[z] {
			free++
		}
	}
	return free
}
