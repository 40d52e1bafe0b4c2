package addrspace

import (
	"github.com/chiquitav2/ipam/internal/allocator/config"
)

// DefaultCountries is the built-in country table. It covers octets 1..254;
// 0 and 255 are globally reserved. The tail of the octet space is held in
// reserve for future countries.
func DefaultCountries() []Country {
	return []Country{
		{Name: "United States", Continent: "North America", XStart: 1, XEnd: 24},
		{Name: "Canada", Continent: "North America", XStart: 25, XEnd: 32},
		{Name: "Mexico", Continent: "North America", XStart: 33, XEnd: 38},

		{Name: "Brazil", Continent: "South America", XStart: 39, XEnd: 44},
		{Name: "Argentina", Continent: "South America", XStart: 45, XEnd: 47},
		{Name: "Chile", Continent: "South America", XStart: 48, XEnd: 49},

		{Name: "India", Continent: "Asia", XStart: 50, XEnd: 50},
		{Name: "China", Continent: "Asia", XStart: 51, XEnd: 62},
		{Name: "Japan", Continent: "Asia", XStart: 63, XEnd: 72},
		{Name: "South Korea", Continent: "Asia", XStart: 73, XEnd: 78},
		{Name: "Singapore", Continent: "Asia", XStart: 79, XEnd: 82},
		{Name: "Indonesia", Continent: "Asia", XStart: 83, XEnd: 86},

		{Name: "Germany", Continent: "Europe", XStart: 87, XEnd: 96},
		{Name: "United Kingdom", Continent: "Europe", XStart: 97, XEnd: 106},
		{Name: "France", Continent: "Europe", XStart: 107, XEnd: 114},
		{Name: "Netherlands", Continent: "Europe", XStart: 115, XEnd: 118},
		{Name: "Spain", Continent: "Europe", XStart: 119, XEnd: 122},
		{Name: "Italy", Continent: "Europe", XStart: 123, XEnd: 126},
		{Name: "Sweden", Continent: "Europe", XStart: 127, XEnd: 128},
		{Name: "Poland", Continent: "Europe", XStart: 129, XEnd: 130},

		{Name: "South Africa", Continent: "Africa", XStart: 131, XEnd: 134},
		{Name: "Nigeria", Continent: "Africa", XStart: 135, XEnd: 136},
		{Name: "Egypt", Continent: "Africa", XStart: 137, XEnd: 138},
		{Name: "Kenya", Continent: "Africa", XStart: 139, XEnd: 140},

		{Name: "Australia", Continent: "Oceania", XStart: 141, XEnd: 148},
		{Name: "New Zealand", Continent: "Oceania", XStart: 149, XEnd: 150},

		{Name: "Unassigned", Continent: "Reserved", XStart: 151, XEnd: 254, IsReserved: true},
	}
}

// FromConfig builds the address space from configuration, falling back to
// the built-in country table when none is configured.
func FromConfig(cfg config.AddressSpaceConfig) (*Space, error) {
	countries := DefaultCountries()
	if len(cfg.Countries) > 0 {
		countries = make([]Country, 0, len(cfg.Countries))
		for _, c := range cfg.Countries {
			countries = append(countries, Country{
				Name:       c.Name,
				Continent:  c.Continent,
				XStart:     c.XStart,
				XEnd:       c.XEnd,
				IsReserved: c.Reserved,
			})
		}
	}

	reserved := cfg.ReservedOctets
	if reserved == nil {
		reserved = []int{0, 255}
	}

	blocks := make([]Block, 0, len(cfg.ReservedBlocks))
	for _, b := range cfg.Blocks() {
		blocks = append(blocks, Block{X: b.X, Y: b.Y})
	}

	return New(countries, reserved, blocks)
}
