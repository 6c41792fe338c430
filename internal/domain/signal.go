package domain

import "time"

// TLSInfo describes the leaf certificate served by a host.
// The zero value means no certificate could be read.
type TLSInfo struct {
	Issuer    string    `json:"issuer,omitempty"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
	// Trusted is false when the chain did not verify against system roots.
	Trusted bool `json:"trusted"`
}

func (t *TLSInfo) Empty() bool {
	return t == nil || (t.Issuer == "" && t.ValidTo.IsZero())
}

// DomainMetadata is the flat, nullable view of every gathered signal for a
// domain. It is recomputed per analysis and surfaced to API clients.
type DomainMetadata struct {
	Domain        string     `json:"domain"`
	DomainAgeDays *int       `json:"domain_age_days"`
	SSLIssuer     *string    `json:"ssl_issuer"`
	SSLValidFrom  *time.Time `json:"ssl_valid_from"`
	SSLValidTo    *time.Time `json:"ssl_valid_to"`
	SSLTrusted    *bool      `json:"ssl_trusted,omitempty"`
	MLScore       *float64   `json:"ml_score"`
	MLLabel       *string    `json:"ml_label"`

	// TLSChecked is set once a certificate lookup completed, successfully or
	// not. Missing-certificate rules only apply when it is true.
	TLSChecked bool `json:"-"`
}

// ApplyTLS copies a certificate into the nullable ssl_* fields.
func (m *DomainMetadata) ApplyTLS(info *TLSInfo) {
	m.TLSChecked = true
	if info.Empty() {
		return
	}
	trusted := info.Trusted
	m.SSLTrusted = &trusted
	if info.Issuer != "" {
		issuer := info.Issuer
		m.SSLIssuer = &issuer
	}
	if !info.ValidFrom.IsZero() {
		from := info.ValidFrom.UTC()
		m.SSLValidFrom = &from
	}
	if !info.ValidTo.IsZero() {
		to := info.ValidTo.UTC()
		m.SSLValidTo = &to
	}
}

// ApplyModel records the risk model output.
func (m *DomainMetadata) ApplyModel(score float64, label string) {
	m.MLScore = &score
	m.MLLabel = &label
}

// ExternalResult is a threat-intel verdict. Safe is nil when the provider had
// no opinion.
type ExternalResult struct {
	Safe       *bool  `json:"safe"`
	ThreatType string `json:"threat_type,omitempty"`
	Confidence int    `json:"confidence"`
	Details    string `json:"details,omitempty"`
	Source     string `json:"source"`
}

func (r *ExternalResult) IsUnsafe() bool {
	return r != nil && ((r.Safe != nil && !*r.Safe) || r.ThreatType != "")
}

func (r *ExternalResult) IsSafe() bool {
	return r != nil && r.Safe != nil && *r.Safe && r.ThreatType == ""
}

// MergeExternal combines provider results: any unsafe result wins, then any
// safe one; within a class the highest confidence is kept. Returns nil when
// no provider answered.
func MergeExternal(results ...*ExternalResult) *ExternalResult {
	var unsafe, safe, unknown *ExternalResult
	for _, r := range results {
		switch {
		case r == nil:
			continue
		case r.IsUnsafe():
			if unsafe == nil || r.Confidence > unsafe.Confidence {
				unsafe = r
			}
		case r.IsSafe():
			if safe == nil || r.Confidence > safe.Confidence {
				safe = r
			}
		default:
			if unknown == nil {
				unknown = r
			}
		}
	}
	switch {
	case unsafe != nil:
		return unsafe
	case safe != nil:
		return safe
	default:
		return unknown
	}
}

// BoolPtr is a helper for the nullable Safe field.
func BoolPtr(b bool) *bool { return &b }
