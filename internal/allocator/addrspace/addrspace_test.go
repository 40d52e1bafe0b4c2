package addrspace

import (
	"testing"

	"github.com/chiquitav2/ipam/internal/allocator/config"
	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PartitionsOctetSpace(t *testing.T) {
	s := Default()

	for x := 1; x <= 254; x++ {
		c, err := s.ResolveCountry(x)
		require.NoError(t, err, "octet %d", x)
		assert.True(t, c.Contains(x))
	}

	for _, x := range []int{0, 255, -1, 256} {
		_, err := s.ResolveCountry(x)
		assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound), "octet %d", x)
	}
}

func TestCountryLookups(t *testing.T) {
	s := Default()

	india, err := s.Country("india")
	require.NoError(t, err)
	assert.Equal(t, "India", india.Name)
	assert.Equal(t, "Asia", india.Continent)

	r, err := s.RangeFor("India")
	require.NoError(t, err)
	assert.Equal(t, Range{XStart: 50, XEnd: 50}, r)

	_, err = s.RangeFor("Atlantis")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))

	assert.True(t, s.IsReserved("Unassigned"))
	assert.False(t, s.IsReserved("India"))
	assert.False(t, s.IsReserved("Atlantis"))
}

func TestRegionSlots(t *testing.T) {
	s, err := New([]Country{
		{Name: "Alpha", Continent: "Test", XStart: 1, XEnd: 2},
		{Name: "Beta", Continent: "Test", XStart: 3, XEnd: 254, IsReserved: true},
	}, []int{0, 255}, []Block{{X: 1, Y: 0}, {X: 2, Y: 10}, {X: 100, Y: 1}})
	require.NoError(t, err)

	slots, err := s.RegionSlots("Alpha")
	require.NoError(t, err)
	assert.Equal(t, 2*256-2, slots)

	slots, err = s.RegionSlots("Beta")
	require.NoError(t, err)
	assert.Zero(t, slots)

	assert.Equal(t, 510, s.TotalRegionSlots())
	assert.True(t, s.IsBlockReserved(2, 10))
	assert.False(t, s.IsBlockReserved(2, 11))

	india, err := Default().RegionSlots("India")
	require.NoError(t, err)
	assert.Equal(t, 256, india)
}

func TestNew_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name      string
		countries []Country
		reserved  []int
		blocks    []Block
	}{
		{name: "empty", countries: nil, reserved: []int{0, 255}},
		{
			name: "overlap",
			countries: []Country{
				{Name: "A", XStart: 1, XEnd: 128},
				{Name: "B", XStart: 128, XEnd: 254},
			},
			reserved: []int{0, 255},
		},
		{
			name:      "gap",
			countries: []Country{{Name: "A", XStart: 1, XEnd: 200}},
			reserved:  []int{0, 255},
		},
		{
			name:      "overlaps reserved octet",
			countries: []Country{{Name: "A", XStart: 0, XEnd: 254}},
			reserved:  []int{0, 255},
		},
		{
			name: "duplicate name",
			countries: []Country{
				{Name: "A", XStart: 1, XEnd: 100},
				{Name: "a", XStart: 101, XEnd: 254},
			},
			reserved: []int{0, 255},
		},
		{
			name:      "inverted range",
			countries: []Country{{Name: "A", XStart: 254, XEnd: 1}},
			reserved:  []int{0, 255},
		},
		{
			name:      "block out of range",
			countries: []Country{{Name: "A", XStart: 1, XEnd: 254}},
			reserved:  []int{0, 255},
			blocks:    []Block{{X: 1, Y: 300}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.countries, tt.reserved, tt.blocks)
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeConfiguration))
		})
	}
}

func TestContinents(t *testing.T) {
	continents := Default().Continents()

	names := make([]string, 0, len(continents))
	for _, c := range continents {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"North America", "South America", "Asia", "Europe", "Africa", "Oceania", "Reserved"}, names)
	assert.Len(t, continents[0].Countries, 3)
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(config.AddressSpaceConfig{})
	require.NoError(t, err)
	assert.Len(t, s.Countries(), len(DefaultCountries()))

	s, err = FromConfig(config.AddressSpaceConfig{
		ReservedOctets: []int{0, 255},
		ReservedBlocks: []string{"5.5"},
		Countries: []config.CountryConfig{
			{Name: "Only", Continent: "Solo", XStart: 1, XEnd: 254},
		},
	})
	require.NoError(t, err)
	assert.Len(t, s.AllocatableCountries(), 1)
	assert.True(t, s.IsBlockReserved(5, 5))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "10.50.0.0/24", RegionCIDR(50, 0))
	assert.Equal(t, "10.50.0.1", HostAddress(50, 0, 1))
	assert.Equal(t, "10.1.255.0/24", Block{X: 1, Y: 255}.CIDR())
	assert.Equal(t, 254, HostsPerRegion())
}

func TestNextRegionBlock(t *testing.T) {
	s, err := New([]Country{
		{Name: "Alpha", Continent: "Test", XStart: 1, XEnd: 2},
		{Name: "Rest", Continent: "Test", XStart: 3, XEnd: 254, IsReserved: true},
	}, []int{0, 255}, []Block{{X: 1, Y: 2}})
	require.NoError(t, err)
	alpha, _ := s.Country("Alpha")

	t.Run("picks lowest free y", func(t *testing.T) {
		occupied := map[Block]bool{{1, 0}: true, {1, 1}: true, {1, 3}: true}
		b, err := s.NextRegionBlock(alpha, occupied)
		require.NoError(t, err)
		// 1.2 is reserved, so the next free is 1.4
		assert.Equal(t, Block{X: 1, Y: 4}, b)
	})

	t.Run("gap before reserved block", func(t *testing.T) {
		occupied := map[Block]bool{{1, 0}: true, {1, 3}: true}
		b, err := s.NextRegionBlock(alpha, occupied)
		require.NoError(t, err)
		assert.Equal(t, Block{X: 1, Y: 1}, b)
	})

	t.Run("moves to next x when first is full", func(t *testing.T) {
		occupied := make(map[Block]bool)
		for y := 0; y < 256; y++ {
			occupied[Block{X: 1, Y: y}] = true
		}
		b, err := s.NextRegionBlock(alpha, occupied)
		require.NoError(t, err)
		assert.Equal(t, Block{X: 2, Y: 0}, b)
	})

	t.Run("exhausted", func(t *testing.T) {
		occupied := make(map[Block]bool)
		for x := 1; x <= 2; x++ {
			for y := 0; y < 256; y++ {
				occupied[Block{X: x, Y: y}] = true
			}
		}
		_, err := s.NextRegionBlock(alpha, occupied)
		assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeCapacityExhausted))
	})

	t.Run("reserved country", func(t *testing.T) {
		rest, _ := s.Country("Rest")
		_, err := s.NextRegionBlock(rest, nil)
		assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))
	})
}

func TestNextHostOctets(t *testing.T) {
	occupied := map[int]bool{1: true, 2: true, 4: true}

	zs, err := NextHostOctets(occupied, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 6}, zs)

	full := make(map[int]bool)
	for z := 1; z <= 249; z++ {
		full[z] = true
	}
	assert.Equal(t, 5, FreeHostOctets(full))

	_, err = NextHostOctets(full, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeCapacityExhausted))

	zs, err = NextHostOctets(full, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{250, 251, 252, 253, 254}, zs)

	_, err = NextHostOctets(nil, 0)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))
}
