package match

import (
	"sort"
	"strings"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

// roleSynonyms maps a canonical role token to the phrases that mean it in
// English, French, German and Spanish. Phrases are stored folded.
var roleSynonyms = map[string][]string{
	"ceo": {
		"chief executive officer", "chief executive",
		"pdg", "president directeur general", "presidente directrice generale",
		"directeur general", "directrice generale",
		"geschaftsfuhrer", "geschaftsfuhrerin", "vorstandsvorsitzender", "vorstandsvorsitzende",
		"director general", "directora general", "director ejecutivo", "directora ejecutiva",
		"consejero delegado", "consejera delegada",
	},
	"cfo": {
		"chief financial officer", "chief finance officer",
		"directeur financier", "directrice financiere", "daf",
		"directeur administratif et financier", "directrice administrative et financiere",
		"finanzvorstand", "finanzdirektor", "finanzdirektorin", "kaufmannischer geschaftsfuhrer",
		"director financiero", "directora financiera",
	},
	"cto": {
		"chief technology officer", "chief technical officer",
		"directeur technique", "directrice technique",
		"technischer direktor", "technischer geschaftsfuhrer", "technikvorstand",
		"director tecnico", "directora tecnica", "director de tecnologia", "directora de tecnologia",
	},
	"coo": {
		"chief operating officer", "chief operations officer",
		"directeur des operations", "directrice des operations",
		"betriebsleiter", "betriebsleiterin",
		"director de operaciones", "directora de operaciones",
	},
	"cmo": {
		"chief marketing officer",
		"directeur marketing", "directrice marketing",
		"marketingvorstand",
		"director de marketing", "directora de marketing",
	},
	"founder": {
		"co founder", "cofounder", "founding partner",
		"fondateur", "fondatrice", "cofondateur", "cofondatrice", "co fondateur", "co fondatrice",
		"grunder", "grunderin", "mitgrunder", "mitgrunderin",
		"fundador", "fundadora", "cofundador", "cofundadora",
	},
	"owner": {
		"proprietaire", "gerant", "gerante",
		"inhaber", "inhaberin",
		"propietario", "propietaria",
	},
	"president": {
		"presidente", "presidente du conseil", "prasident", "prasidentin",
	},
}

// executiveTokens are canonical tokens that signal a leadership search.
var executiveTokens = map[string]bool{
	"ceo": true, "cfo": true, "cto": true, "coo": true, "cmo": true,
	"cio": true, "cso": true, "chro": true, "cpo": true,
	"founder": true, "owner": true, "president": true, "chairman": true,
}

// excludedFamilies are job families rejected under executive intent even when
// the literal title would otherwise match.
var excludedFamilies = []string{
	"sales", "marketing", "manager", "coordinator", "analyst",
	"assistant", "associate", "intern", "representative", "specialist",
}

type synonym struct {
	words     []string
	canonical string
}

// synonymsByLength holds every synonym phrase, longest first, so
// "president directeur general" wins over "president".
var synonymsByLength = buildSynonyms()

func buildSynonyms() []synonym {
	var out []synonym
	for canonical, phrases := range roleSynonyms {
		for _, phrase := range phrases {
			out = append(out, synonym{words: strings.Fields(Fold(phrase)), canonical: canonical})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].words) != len(out[j].words) {
			return len(out[i].words) > len(out[j].words)
		}
		return strings.Join(out[i].words, " ") < strings.Join(out[j].words, " ")
	})
	return out
}

// NormalizeTitle folds s and rewrites known role phrases to canonical tokens:
// "Président-Directeur Général" becomes "ceo".
func NormalizeTitle(s string) string {
	words := strings.Fields(Fold(s))
	if len(words) == 0 {
		return ""
	}
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); {
		matched := false
		for _, syn := range synonymsByLength {
			n := len(syn.words)
			if i+n > len(words) || !wordsEqual(words[i:i+n], syn.words) {
				continue
			}
			out = append(out, syn.canonical)
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, words[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

func wordsEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TitleMatcher matches candidate titles against a title query.
type TitleMatcher struct {
	tokens    []string
	executive bool
}

// NewTitleMatcher builds a matcher from raw query entries. Each entry may be
// a comma separated list; any entry matching is enough.
func NewTitleMatcher(queries []string) *TitleMatcher {
	m := &TitleMatcher{}
	seen := map[string]bool{}
	for _, q := range queries {
		for _, part := range leads.ParseTitles(q) {
			token := NormalizeTitle(part)
			if token == "" || seen[token] {
				continue
			}
			seen[token] = true
			m.tokens = append(m.tokens, token)
			for _, w := range strings.Fields(token) {
				if executiveTokens[w] {
					m.executive = true
				}
			}
		}
	}
	return m
}

// Active reports whether the query had any usable token.
func (m *TitleMatcher) Active() bool {
	return m != nil && len(m.tokens) > 0
}

// Executive reports whether the query targets leadership roles.
func (m *TitleMatcher) Executive() bool {
	return m != nil && m.executive
}

// Tokens returns the normalized query tokens.
func (m *TitleMatcher) Tokens() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.tokens...)
}

// Match reports whether title satisfies the query. An inactive matcher
// accepts everything; an empty title never matches an active one.
func (m *TitleMatcher) Match(title string) bool {
	if !m.Active() {
		return true
	}
	normalized := NormalizeTitle(title)
	if normalized == "" {
		return false
	}
	if m.executive && excluded(normalized) {
		return false
	}
	words := strings.Fields(normalized)
	for _, token := range m.tokens {
		if containsPhrase(normalized, token) {
			return true
		}
		if strings.Contains(token, " ") {
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, token) {
				return true
			}
		}
	}
	return false
}

func excluded(normalized string) bool {
	for _, family := range excludedFamilies {
		if containsPhrase(normalized, family) {
			return true
		}
	}
	return false
}
