package lang

import (
	"strconv"
	"strings"
)

const (
	English  = "en"
	Japanese = "ja"
	Chinese  = "zh"
)

// Default is used when Accept-Language names no supported language.
const Default = English

var names = map[string]string{
	English:  "English",
	Japanese: "Japanese",
	Chinese:  "Chinese",
}

// Name returns the English name of a supported language code.
func Name(code string) string {
	if n, ok := names[code]; ok {
		return n
	}
	return names[Default]
}

// Supported reports whether code is one of the research languages.
func Supported(code string) bool {
	_, ok := names[code]
	return ok
}

// FromAcceptLanguage picks the supported language with the highest q-value.
// Ties keep the first one listed.
func FromAcceptLanguage(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return Default
	}

	best := ""
	bestQ := 0.0

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		tag, q := parseLangPart(part)
		if tag == "" || q <= 0 {
			continue
		}
		primary := tag
		if idx := strings.IndexAny(tag, "-_"); idx != -1 {
			primary = tag[:idx]
		}
		if !Supported(primary) {
			continue
		}
		if q > bestQ {
			best = primary
			bestQ = q
		}
	}

	if best == "" {
		return Default
	}
	return best
}

func parseLangPart(part string) (string, float64) {
	langTag := part
	q := 1.0

	if idx := strings.Index(part, ";"); idx != -1 {
		langTag = strings.TrimSpace(part[:idx])
		params := strings.Split(part[idx+1:], ";")
		for _, p := range params {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(strings.ToLower(p), "q=") {
				val := strings.TrimSpace(p[2:])
				if v, err := strconv.ParseFloat(val, 64); err == nil {
					q = v
				}
			}
		}
	}

	langTag = strings.ToLower(strings.TrimSpace(langTag))
	return langTag, q
}
