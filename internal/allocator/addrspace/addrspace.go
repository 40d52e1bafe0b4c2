// Package addrspace maps countries and continents onto the X octet of the
// 10.0.0.0/8 space. It holds no mutable state.
package addrspace

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
)

// FirstOctet is fixed for the whole address space.
const FirstOctet = 10

const (
	slotsPerX      = 256
	hostsPerRegion = 254
)

// Country is a contiguous, inclusive range of X octets.
type Country struct {
	Name       string `json:"name"`
	Continent  string `json:"continent"`
	XStart     int    `json:"x_start"`
	XEnd       int    `json:"x_end"`
	IsReserved bool   `json:"is_reserved"`
}

// Range is an inclusive X-octet range.
type Range struct {
	XStart int `json:"x_start"`
	XEnd   int `json:"x_end"`
}

// Contains reports whether x falls inside the country's range.
func (c Country) Contains(x int) bool {
	return x >= c.XStart && x <= c.XEnd
}

// Width is the number of X octets the country owns.
func (c Country) Width() int {
	return c.XEnd - c.XStart + 1
}

// Block is a single /24 identified by its X and Y octets.
type Block struct {
	X int `json:"x_octet"`
	Y int `json:"y_octet"`
}

// CIDR returns "10.X.Y.0/24".
func (b Block) CIDR() string {
	return RegionCIDR(b.X, b.Y)
}

// Continent groups countries for aggregate views.
type Continent struct {
	Name      string    `json:"name"`
	Countries []Country `json:"countries"`
}

// Space is the validated, immutable country table.
type Space struct {
	countries      []Country // sorted by XStart
	byName         map[string]Country
	byX            [256]int // index into countries, -1 when unowned
	reservedOctets map[int]bool
	reservedBlocks map[Block]bool
}

// New validates the country table and builds lookup indexes. Countries
// must be pairwise disjoint and together cover every octet in 0..255
// that is not globally reserved.
func New(countries []Country, reservedOctets []int, reservedBlocks []Block) (*Space, error) {
	if len(countries) == 0 {
		return nil, configError("country table is empty", nil)
	}

	s := &Space{
		countries:      make([]Country, len(countries)),
		byName:         make(map[string]Country, len(countries)),
		reservedOctets: make(map[int]bool, len(reservedOctets)),
		reservedBlocks: make(map[Block]bool, len(reservedBlocks)),
	}
	copy(s.countries, countries)
	sort.Slice(s.countries, func(i, j int) bool { return s.countries[i].XStart < s.countries[j].XStart })

	for i := range s.byX {
		s.byX[i] = -1
	}
	for _, octet := range reservedOctets {
		if octet < 0 || octet > 255 {
			return nil, configError(fmt.Sprintf("reserved octet %d out of range", octet), nil)
		}
		s.reservedOctets[octet] = true
	}

	for i, c := range s.countries {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, configError("country name is required", nil)
		}
		key := strings.ToLower(name)
		if _, dup := s.byName[key]; dup {
			return nil, configError(fmt.Sprintf("duplicate country %q", name), nil)
		}
		if c.XStart < 0 || c.XEnd > 255 || c.XStart > c.XEnd {
			return nil, configError(fmt.Sprintf("country %q has invalid range [%d,%d]", name, c.XStart, c.XEnd), nil)
		}

		for x := c.XStart; x <= c.XEnd; x++ {
			if s.reservedOctets[x] {
				return nil, configError(fmt.Sprintf("country %q overlaps globally reserved octet %d", name, x), nil)
			}
			if owner := s.byX[x]; owner >= 0 {
				return nil, configError(fmt.Sprintf("country %q overlaps %q at octet %d", name, s.countries[owner].Name, x), nil)
			}
			s.byX[x] = i
		}
		s.countries[i].Name = name
		s.byName[key] = s.countries[i]
	}

	for x := 0; x < 256; x++ {
		if s.byX[x] < 0 && !s.reservedOctets[x] {
			return nil, configError(fmt.Sprintf("octet %d is not assigned to any country", x), nil)
		}
	}

	for _, b := range reservedBlocks {
		if b.X < 0 || b.X > 255 || b.Y < 0 || b.Y > 255 {
			return nil, configError(fmt.Sprintf("reserved block %d.%d out of range", b.X, b.Y), nil)
		}
		s.reservedBlocks[b] = true
	}

	return s, nil
}

// Default returns the built-in table with octets 0 and 255 reserved.
func Default() *Space {
	s, err := New(DefaultCountries(), []int{0, 255}, nil)
	if err != nil {
		panic(fmt.Sprintf("built-in country table is invalid: %v", err))
	}
	return s
}

func configError(msg string, cause error) error {
	return apperrors.NewAddressSpaceError(apperrors.ErrCodeConfiguration, msg, cause)
}

func countryNotFound(name string) error {
	return apperrors.DomainErrCountryNotFound.WithMetadata("country", name)
}

// ResolveCountry returns the country that owns the given X octet.
func (s *Space) ResolveCountry(x int) (Country, error) {
	if x < 0 || x > 255 || s.byX[x] < 0 {
		return Country{}, apperrors.DomainErrCountryNotFound.WithMetadata("x_octet", x)
	}
	return s.countries[s.byX[x]], nil
}

// Country looks a country up by name, case-insensitively.
func (s *Space) Country(name string) (Country, error) {
	c, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Country{}, countryNotFound(name)
	}
	return c, nil
}

// RangeFor returns the X range owned by the country.
func (s *Space) RangeFor(name string) (Range, error) {
	c, err := s.Country(name)
	if err != nil {
		return Range{}, err
	}
	return Range{XStart: c.XStart, XEnd: c.XEnd}, nil
}

// IsReserved reports whether the country is excluded from allocation.
// Unknown countries are not reserved.
func (s *Space) IsReserved(name string) bool {
	c, err := s.Country(name)
	return err == nil && c.IsReserved
}

// IsBlockReserved reports whether a single /24 is withheld from allocation.
func (s *Space) IsBlockReserved(x, y int) bool {
	return s.reservedBlocks[Block{X: x, Y: y}]
}

// Countries returns every country, reserved included, ordered by X.
func (s *Space) Countries() []Country {
	out := make([]Country, len(s.countries))
	copy(out, s.countries)
	return out
}

// AllocatableCountries returns the countries regions may be created in.
func (s *Space) AllocatableCountries() []Country {
	var out []Country
	for _, c := range s.countries {
		if !c.IsReserved {
			out = append(out, c)
		}
	}
	return out
}

// Continents groups countries by continent in order of first appearance.
func (s *Space) Continents() []Continent {
	var out []Continent
	index := make(map[string]int)
	for _, c := range s.countries {
		i, ok := index[c.Continent]
		if !ok {
			i = len(out)
			index[c.Continent] = i
			out = append(out, Continent{Name: c.Continent})
		}
		out[i].Countries = append(out[i].Countries, c)
	}
	return out
}

// RegionSlots is the number of /24 blocks a country can hold:
// (x_end - x_start + 1) * 256 minus reserved blocks inside the range.
// Reserved countries have no allocatable slots.
func (s *Space) RegionSlots(name string) (int, error) {
	c, err := s.Country(name)
	if err != nil {
		return 0, err
	}
	if c.IsReserved {
		return 0, nil
	}
	return s.slotsFor(c), nil
}

func (s *Space) slotsFor(c Country) int {
	slots := c.Width() * slotsPerX
	for b := range s.reservedBlocks {
		if c.Contains(b.X) {
			slots--
		}
	}
	return slots
}

// TotalRegionSlots sums RegionSlots across allocatable countries.
func (s *Space) TotalRegionSlots() int {
	total := 0
	for _, c := range s.AllocatableCountries() {
		total += s.slotsFor(c)
	}
	return total
}

// HostsPerRegion is the number of usable host addresses in a /24.
func HostsPerRegion() int {
	return hostsPerRegion
}

// RegionCIDR formats the /24 for the given octets.
func RegionCIDR(x, y int) string {
	addr := netip.AddrFrom4([4]byte{FirstOctet, byte(x), byte(y), 0})
	return netip.PrefixFrom(addr, 24).String()
}

// HostAddress formats 10.X.Y.Z.
func HostAddress(x, y, z int) string {
	return netip.AddrFrom4([4]byte{FirstOctet, byte(x), byte(y), byte(z)}).String()
}
