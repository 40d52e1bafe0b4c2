package config

// InternalDefaults provides access to hardcoded allocation limits.
// These settings are not user-configurable but are shared by the
// allocator components and the API layer.
type InternalDefaults struct{}

// NewInternalDefaults returns internal configuration defaults
func NewInternalDefaults() *InternalDefaults {
	return &InternalDefaults{}
}

// AllocationLimits bounds what a single request may allocate
type AllocationLimits struct {
	HostsPerRegion   int // usable z values, 1..254
	MinHostOctet     int
	MaxHostOctet     int
	SlotsPerXOctet   int // y values, 0..255
	MaxBatchSize     int
	MaxBulkRelease   int
	MaxNameLength    int
	MaxReasonLength  int
	MaxTagsPerHost   int
	MaxDescription   int
	HostnamePattern  string
	PrefixPattern    string
	MinHostnameWidth int // zero padding for batch names
}

// PaginationDefaults applies to every list and query operation
type PaginationDefaults struct {
	DefaultPageSize int
	MaxPageSize     int
}

// AllocationLimits returns the allocation limits
func (d *InternalDefaults) AllocationLimits() AllocationLimits {
	return AllocationLimits{
		HostsPerRegion:   254,
		MinHostOctet:     1,
		MaxHostOctet:     254,
		SlotsPerXOctet:   256,
		MaxBatchSize:     100,
		MaxBulkRelease:   500,
		MaxNameLength:    100,
		MaxReasonLength:  1000,
		MaxTagsPerHost:   32,
		MaxDescription:   1000,
		HostnamePattern:  `^[a-zA-Z0-9\-_.]{2,100}$`,
		PrefixPattern:    `^[a-zA-Z0-9\-_]{2,}$`,
		MinHostnameWidth: 2,
	}
}

// PaginationDefaults returns the paging limits
func (d *InternalDefaults) PaginationDefaults() PaginationDefaults {
	return PaginationDefaults{
		DefaultPageSize: 20,
		MaxPageSize:     100,
	}
}

// NormalizePage clamps page and page size to the pagination defaults.
// Pages are 1-based.
func (p PaginationDefaults) NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = p.DefaultPageSize
	}
	if pageSize > p.MaxPageSize {
		pageSize = p.MaxPageSize
	}
	return page, pageSize
}
