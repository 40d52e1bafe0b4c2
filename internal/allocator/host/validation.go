package host

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chiquitav2/ipam/internal/allocator/config"
	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
)

const maxTagLength = 64

type validator struct {
	limits   config.AllocationLimits
	hostname *regexp.Regexp
	prefix   *regexp.Regexp
}

func newValidator() *validator {
	limits := config.NewInternalDefaults().AllocationLimits()
	return &validator{
		limits:   limits,
		hostname: regexp.MustCompile(limits.HostnamePattern),
		prefix:   regexp.MustCompile(limits.PrefixPattern),
	}
}

func (v *validator) checkHostname(name string) error {
	if !v.hostname.MatchString(name) {
		return apperrors.NewHostError(apperrors.ErrCodeInvalidHostname,
			"hostname must be 2-100 characters of letters, digits, '-', '_' or '.'", false, nil).
			WithMetadata("hostname", name)
	}
	return nil
}

func (v *validator) checkPrefix(prefix string) error {
	if !v.prefix.MatchString(prefix) {
		return apperrors.NewValidationError(apperrors.DomainHost, "hostname_prefix",
			"hostname_prefix must be at least 2 characters of letters, digits, '-' or '_'").
			WithMetadata("hostname_prefix", prefix)
	}
	return nil
}

func (v *validator) checkCount(count int) error {
	if count < 1 || count > v.limits.MaxBatchSize {
		return apperrors.NewValidationError(apperrors.DomainHost, "count",
			fmt.Sprintf("count must be between 1 and %d", v.limits.MaxBatchSize)).
			WithMetadata("count", count)
	}
	return nil
}

func (v *validator) checkReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperrors.NewValidationError(apperrors.DomainHost, "reason", "reason is required")
	}
	if len(reason) > v.limits.MaxReasonLength {
		return apperrors.NewValidationError(apperrors.DomainHost, "reason",
			fmt.Sprintf("reason must be at most %d characters", v.limits.MaxReasonLength))
	}
	return nil
}

func (v *validator) checkAttributes(deviceType, owner, purpose string) error {
	for field, value := range map[string]string{"device_type": deviceType, "owner": owner, "purpose": purpose} {
		if len(value) > v.limits.MaxDescription {
			return apperrors.NewValidationError(apperrors.DomainHost, field,
				fmt.Sprintf("%s must be at most %d characters", field, v.limits.MaxDescription))
		}
	}
	return nil
}

// normalizeTags trims, drops blanks and de-duplicates while keeping order.
func (v *validator) normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		if len(tag) > maxTagLength {
			return nil, apperrors.NewValidationError(apperrors.DomainHost, "tags",
				fmt.Sprintf("tags must be at most %d characters", maxTagLength)).
				WithMetadata("tag", tag)
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > v.limits.MaxTagsPerHost {
		return nil, apperrors.NewValidationError(apperrors.DomainHost, "tags",
			fmt.Sprintf("at most %d tags per host", v.limits.MaxTagsPerHost))
	}
	return out, nil
}

func (v *validator) checkStatus(status string) error {
	switch status {
	case "", StatusActive, StatusReleased:
		return nil
	}
	return apperrors.NewValidationError(apperrors.DomainHost, "status", "status must be active or released").
		WithMetadata("status", status)
}

// batchNames returns count names continuing after the highest existing
// {prefix}-N among existing. The width is max(2, digits of the last index).
func (v *validator) batchNames(prefix string, count int, existing []string) ([]string, error) {
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `-(\d+)$`)

	highest := 0
	for _, name := range existing {
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(m[1], "%d", &n); err == nil && n > highest {
			highest = n
		}
	}

	last := highest + count
	width := len(fmt.Sprint(last))
	if width < v.limits.MinHostnameWidth {
		width = v.limits.MinHostnameWidth
	}

	names := make([]string, 0, count)
	for i := highest + 1; i <= last; i++ {
		name := fmt.Sprintf("%s-%0*d", prefix, width, i)
		if err := v.checkHostname(name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
