package api

// RetireRegionRequest is the body of DELETE /api/v1/regions/{regionID}.
type RetireRegionRequest struct {
	Reason  string `json:"reason"`
	Cascade bool   `json:"cascade,omitempty"` // release the region's active hosts too
}

// ReleaseHostRequest is the body of DELETE /api/v1/hosts/{hostID}.
type ReleaseHostRequest struct {
	Reason string `json:"reason"`
}

// BulkReleaseRequest releases several hosts with one reason.
type BulkReleaseRequest struct {
	HostIDs []string `json:"host_ids"`
	Reason  string   `json:"reason"`
}
