package shared

import "strings"

type Language struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Voice string `json:"voice"`
}

var languages = []Language{
	{Code: "de", Name: "German", Voice: "onyx"},
	{Code: "en", Name: "English", Voice: "alloy"},
	{Code: "es", Name: "Spanish", Voice: "shimmer"},
	{Code: "fr", Name: "French", Voice: "echo"},
	{Code: "it", Name: "Italian", Voice: "fable"},
	{Code: "ja", Name: "Japanese", Voice: "nova"},
	{Code: "ru", Name: "Russian", Voice: "onyx"},
	{Code: "zh", Name: "Chinese", Voice: "alloy"},
}

func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LookupLanguage accepts a code ("de", "de-AT") or an English name ("german").
func LookupLanguage(s string) (Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Language{}, false
	}
	for _, l := range languages {
		if s == l.Code || strings.HasPrefix(s, l.Code+"-") || strings.HasPrefix(s, l.Code+"_") {
			return l, true
		}
		if s == strings.ToLower(l.Name) {
			return l, true
		}
	}
	return Language{}, false
}

// SameLanguage reports whether a detected language already matches target.
// Unknown values fall back to a case-insensitive prefix comparison.
func SameLanguage(detected, target string) bool {
	if strings.TrimSpace(detected) == "" || strings.TrimSpace(target) == "" {
		return false
	}
	d, dok := LookupLanguage(detected)
	t, tok := LookupLanguage(target)
	if dok && tok {
		return d.Code == t.Code
	}
	return strings.HasPrefix(strings.ToLower(detected), strings.ToLower(target))
}
