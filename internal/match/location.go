package match

import "strings"

type country struct {
	code   string
	names  []string
	codes  []string
	cities []string
}

// countries is the alias table used to widen location filters: a filter
// naming a country also accepts its codes and major cities.
var countries = []country{
	{
		code:   "FR",
		names:  []string{"france", "republique francaise", "ile de france"},
		codes:  []string{"fr", "fra"},
		cities: []string{"paris", "lyon", "marseille", "toulouse", "lille", "bordeaux", "nantes", "nice", "strasbourg", "montpellier", "rennes"},
	},
	{
		code:   "US",
		names:  []string{"united states", "united states of america", "etats unis", "estados unidos", "vereinigte staaten"},
		codes:  []string{"us", "usa"},
		cities: []string{"new york", "san francisco", "los angeles", "chicago", "boston", "seattle", "austin", "miami", "denver"},
	},
	{
		code:   "GB",
		names:  []string{"united kingdom", "great britain", "england", "scotland", "royaume uni", "reino unido", "vereinigtes konigreich"},
		codes:  []string{"uk", "gb", "gbr"},
		cities: []string{"london", "londres", "manchester", "edinburgh", "birmingham", "bristol", "glasgow"},
	},
	{
		code:   "DE",
		names:  []string{"germany", "deutschland", "allemagne", "alemania"},
		codes:  []string{"de", "deu"},
		cities: []string{"berlin", "munich", "munchen", "hamburg", "frankfurt", "cologne", "koln", "stuttgart", "dusseldorf"},
	},
	{
		code:   "ES",
		names:  []string{"spain", "espana", "espagne", "spanien"},
		codes:  []string{"es", "esp"},
		cities: []string{"madrid", "barcelona", "valencia", "seville", "sevilla", "bilbao", "malaga"},
	},
	{
		code:   "CA",
		names:  []string{"canada", "kanada"},
		codes:  []string{"ca", "can"},
		cities: []string{"toronto", "montreal", "vancouver", "ottawa", "calgary", "quebec"},
	},
	{
		code:   "BE",
		names:  []string{"belgium", "belgique", "belgie", "belgien", "belgica"},
		codes:  []string{"be", "bel"},
		cities: []string{"brussels", "bruxelles", "brussel", "antwerp", "anvers", "antwerpen", "ghent", "gand", "gent", "liege"},
	},
	{
		code:   "CH",
		names:  []string{"switzerland", "suisse", "schweiz", "suiza", "svizzera"},
		codes:  []string{"ch", "che"},
		cities: []string{"zurich", "geneva", "geneve", "genf", "basel", "lausanne", "bern", "berne"},
	},
	{
		code:   "NL",
		names:  []string{"netherlands", "the netherlands", "pays bas", "niederlande", "paises bajos", "holland", "nederland"},
		codes:  []string{"nl", "nld"},
		cities: []string{"amsterdam", "rotterdam", "the hague", "den haag", "utrecht", "eindhoven"},
	},
	{
		code:   "IT",
		names:  []string{"italy", "italia", "italie", "italien"},
		codes:  []string{"it", "ita"},
		cities: []string{"rome", "roma", "milan", "milano", "turin", "torino", "naples", "napoli", "florence", "firenze"},
	},
}

// LocationMatcher matches lead locations against the caller's locations.
type LocationMatcher struct {
	filters []locationFilter
}

type locationFilter struct {
	folded    string
	countries []*country
}

// NewLocationMatcher folds and expands the filter values.
func NewLocationMatcher(locations []string) *LocationMatcher {
	m := &LocationMatcher{}
	for _, raw := range locations {
		folded := Fold(raw)
		if folded == "" {
			continue
		}
		m.filters = append(m.filters, locationFilter{folded: folded, countries: countriesNamed(folded)})
	}
	return m
}

// Active reports whether any location filter is set.
func (m *LocationMatcher) Active() bool {
	return m != nil && len(m.filters) > 0
}

// Match reports whether location satisfies any filter. A lead without
// location data always passes.
func (m *LocationMatcher) Match(location string) bool {
	if !m.Active() {
		return true
	}
	folded := Fold(location)
	if folded == "" {
		return true
	}
	segments := segmentsOf(location)
	for _, f := range m.filters {
		if textMatch(folded, segments, f.folded) {
			return true
		}
		for _, c := range f.countries {
			if c.mentionedIn(folded, segments) {
				return true
			}
		}
	}
	return false
}

// textMatch is the bidirectional substring check. Codes of three characters
// or fewer only match a whole segment of the location.
func textMatch(folded string, segments []string, filter string) bool {
	if len(filter) <= 3 || len(folded) <= 3 {
		for _, s := range segments {
			if s == filter {
				return true
			}
		}
		return folded == filter
	}
	return strings.Contains(folded, filter) || strings.Contains(filter, folded)
}

func (c *country) mentionedIn(folded string, segments []string) bool {
	for _, name := range c.names {
		if containsPhrase(folded, name) {
			return true
		}
	}
	for _, city := range c.cities {
		if containsPhrase(folded, city) {
			return true
		}
	}
	for _, code := range c.codes {
		for _, s := range segments {
			if s == code {
				return true
			}
		}
	}
	return false
}

// countriesNamed returns the countries whose name or code is the filter.
func countriesNamed(folded string) []*country {
	var out []*country
	for i := range countries {
		c := &countries[i]
		if c.isNamed(folded) {
			out = append(out, c)
		}
	}
	return out
}

func (c *country) isNamed(folded string) bool {
	for _, name := range c.names {
		if folded == name {
			return true
		}
	}
	for _, code := range c.codes {
		if folded == code {
			return true
		}
	}
	return false
}

// segmentsOf splits a location on its separators and folds each part:
// "Austin, TX, US" gives ["austin", "tx", "us"].
func segmentsOf(location string) []string {
	parts := strings.FieldsFunc(location, func(r rune) bool {
		switch r {
		case ',', ';', '/', '|', '(', ')':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if f := Fold(p); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// CountryCode returns the ISO-3166 alpha-2 code of the first known country
// mentioned in location, or "".
func CountryCode(location string) string {
	folded := Fold(location)
	if folded == "" {
		return ""
	}
	segments := segmentsOf(location)
	for i := range countries {
		if countries[i].mentionedIn(folded, segments) {
			return countries[i].code
		}
	}
	return ""
}
