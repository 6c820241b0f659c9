package geo

// countryZones maps ISO country codes to a default IANA timezone.
// Countries spanning several zones get their most populous one; the
// mapping is a guess used only when the user hasn't set a timezone.
var countryZones = map[string]string{
	"AR": "America/Argentina/Buenos_Aires",
	"AT": "Europe/Vienna",
	"AU": "Australia/Sydney",
	"BE": "Europe/Brussels",
	"BR": "America/Sao_Paulo",
	"CA": "America/Toronto",
	"CH": "Europe/Zurich",
	"CL": "America/Santiago",
	"CN": "Asia/Shanghai",
	"CZ": "Europe/Prague",
	"DE": "Europe/Berlin",
	"DK": "Europe/Copenhagen",
	"EG": "Africa/Cairo",
	"ES": "Europe/Madrid",
	"FI": "Europe/Helsinki",
	"FR": "Europe/Paris",
	"GB": "Europe/London",
	"GR": "Europe/Athens",
	"HU": "Europe/Budapest",
	"ID": "Asia/Jakarta",
	"IE": "Europe/Dublin",
	"IL": "Asia/Jerusalem",
	"IN": "Asia/Kolkata",
	"IT": "Europe/Rome",
	"JP": "Asia/Tokyo",
	"KR": "Asia/Seoul",
	"MX": "America/Mexico_City",
	"NL": "Europe/Amsterdam",
	"NO": "Europe/Oslo",
	"NZ": "Pacific/Auckland",
	"PL": "Europe/Warsaw",
	"PT": "Europe/Lisbon",
	"RO": "Europe/Bucharest",
	"RU": "Europe/Moscow",
	"SE": "Europe/Stockholm",
	"SG": "Asia/Singapore",
	"TR": "Europe/Istanbul",
	"UA": "Europe/Kyiv",
	"US": "America/New_York",
	"ZA": "Africa/Johannesburg",
}

// TimezoneForCountry guesses a default timezone for the country code.
// The second return value is false when the country is unknown.
func TimezoneForCountry(code string) (string, bool) {
	zone, ok := countryZones[code]
	return zone, ok
}
