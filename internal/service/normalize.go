package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iliyamo/locator-validation/internal/source"
)

// LocatorInput is the raw request.  Code carries "LOCATOR|DNI" style
// scans for clients that cannot fill the two fields separately.
type LocatorInput struct {
	Locator   string `json:"locator"`
	DNI       string `json:"dni"`
	ServiceID string `json:"serviceId"`
	Code      string `json:"code"`
}

var combinedSep = regexp.MustCompile(`[|\s-]+`)

// SplitCombined splits a combined scan on '|', '-' or whitespace and
// accepts it only when exactly two non-empty tokens remain.
func SplitCombined(token string) (locator, dni string, ok bool) {
	parts := make([]string, 0, 2)
	for _, p := range combinedSep.Split(strings.TrimSpace(token), -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// NormalizeInput resolves the combined token when a field is missing and
// normalizes the result: the locator is trimmed and upper-cased, the
// document loses all whitespace and is upper-cased, and a blank service
// id means any service.
func NormalizeInput(in LocatorInput) (source.Query, error) {
	locator := strings.TrimSpace(in.Locator)
	dni := strings.TrimSpace(in.DNI)
	if locator == "" || dni == "" {
		token := strings.TrimSpace(in.Code)
		if token == "" {
			// a lone field may itself hold the combined scan
			token = locator + dni
		}
		if token != "" {
			l, d, ok := SplitCombined(token)
			if !ok {
				return source.Query{}, fmt.Errorf("%w: expected locator and dni in code", ErrInvalidRequest)
			}
			locator, dni = l, d
		}
	}
	q := source.Query{
		Locator: strings.ToUpper(strings.TrimSpace(locator)),
		DNI:     NormalizeDocument(dni),
	}
	if q.Locator == "" {
		return source.Query{}, fmt.Errorf("%w: locator is required", ErrInvalidRequest)
	}
	if q.DNI == "" {
		return source.Query{}, fmt.Errorf("%w: dni is required", ErrInvalidRequest)
	}
	if svc := strings.TrimSpace(in.ServiceID); svc != "" {
		q.ServiceID = &svc
	}
	return q, nil
}
