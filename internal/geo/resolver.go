// Package geo resolves the country an account is registered under from the
// UTC offset its client reports at login.
package geo

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// zoneCountries lists representative IANA zones in lexical order with the
// country each belongs to. Resolution picks the first zone whose current
// offset matches.
var zoneCountries = []struct {
	zone    string
	country string
}{
	{"Africa/Cairo", "eg"},
	{"Africa/Johannesburg", "za"},
	{"Africa/Lagos", "ng"},
	{"Africa/Nairobi", "ke"},
	{"America/Anchorage", "us"},
	{"America/Argentina/Buenos_Aires", "ar"},
	{"America/Chicago", "us"},
	{"America/Denver", "us"},
	{"America/Halifax", "ca"},
	{"America/Los_Angeles", "us"},
	{"America/Mexico_City", "mx"},
	{"America/New_York", "us"},
	{"America/Noronha", "br"},
	{"America/Phoenix", "us"},
	{"America/Santiago", "cl"},
	{"America/Sao_Paulo", "br"},
	{"Asia/Bangkok", "th"},
	{"Asia/Dhaka", "bd"},
	{"Asia/Dubai", "ae"},
	{"Asia/Kamchatka", "ru"},
	{"Asia/Karachi", "pk"},
	{"Asia/Seoul", "kr"},
	{"Asia/Shanghai", "cn"},
	{"Asia/Tokyo", "jp"},
	{"Asia/Vladivostok", "ru"},
	{"Atlantic/Azores", "pt"},
	{"Atlantic/Cape_Verde", "cv"},
	{"Atlantic/South_Georgia", "gs"},
	{"Australia/Brisbane", "au"},
	{"Australia/Sydney", "au"},
	{"Europe/Berlin", "de"},
	{"Europe/Helsinki", "fi"},
	{"Europe/London", "gb"},
	{"Europe/Moscow", "ru"},
	{"Pacific/Apia", "ws"},
	{"Pacific/Auckland", "nz"},
	{"Pacific/Guadalcanal", "sb"},
	{"Pacific/Honolulu", "us"},
	{"Pacific/Kiritimati", "ki"},
	{"Pacific/Midway", "um"},
	{"Pacific/Pago_Pago", "as"},
	{"Pacific/Tongatapu", "to"},
}

type zone struct {
	loc     *time.Location
	country string
}

// Resolver maps UTC offsets in whole hours to country codes.
type Resolver struct {
	zones []zone
	now   func() time.Time
}

// NewResolver loads the zone table.
//
// Precondition: now may be nil, in which case time.Now is used.
// Postcondition: Returns a Resolver or an error naming the zone that failed
// to load.
func NewResolver(now func() time.Time) (*Resolver, error) {
	if now == nil {
		now = time.Now
	}
	r := &Resolver{now: now}
	for _, zc := range zoneCountries {
		loc, err := time.LoadLocation(zc.zone)
		if err != nil {
			return nil, fmt.Errorf("geo: loading zone %q: %w", zc.zone, err)
		}
		r.zones = append(r.zones, zone{loc: loc, country: zc.country})
	}
	return r, nil
}

// CountryForOffset returns the country of the first zone currently at
// offset hours from UTC, or UnknownCountry.
func (r *Resolver) CountryForOffset(offset int) string {
	now := r.now()
	for _, z := range r.zones {
		_, secs := now.In(z.loc).Zone()
		if secs == offset*3600 && Known(z.country) {
			return z.country
		}
	}
	return UnknownCountry
}
