package platform

import "strings"

// Order matters: TV user agents routinely contain "Android" or "Linux".
var detectors = []struct {
	id     ID
	tokens []string
}{
	{Tizen, []string{"tizen"}},
	{WebOS, []string{"web0s", "webos", "netcast"}},
	{Roku, []string{"roku"}},
	{FireTV, []string{"aftb", "aftm", "afts", "aftt", "aftka", "aftmm", "fire tv", "firetv"}},
	{AndroidTV, []string{"android tv", "androidtv", "googletv", "bravia", "shield"}},
	{Mobile, []string{"iphone", "ipad", "ipod", "android", "mobile"}},
}

// Detect matches a user-agent string against known platform tokens.
// Anything unrecognised is desktop.
func Detect(ua string) ID {
	ua = strings.ToLower(ua)
	if ua == "" {
		return Desktop
	}
	for _, d := range detectors {
		for _, tok := range d.tokens {
			if strings.Contains(ua, tok) {
				return d.id
			}
		}
	}
	return Desktop
}
