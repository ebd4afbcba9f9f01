package session

import (
	"fmt"
	"math/rand/v2"
	"net/http"
)

var osChoices = []string{
	"Windows NT 10.0; Win64; x64",
	"Macintosh; Intel Mac OS X 10_15_7",
	"X11; Linux x86_64",
}

// RandomHeader builds a randomized browser header set. It is a pure
// pick-from-set function invoked per request; no header state is retained
// between calls, so a fixed fingerprint never develops.
func RandomHeader() http.Header {
	osChoice := osChoices[rand.IntN(len(osChoices))]

	var ua string
	if rand.IntN(2) == 0 {
		version := fmt.Sprintf("%d.0.%d.%d",
			90+rand.IntN(26), 3000+rand.IntN(1000), 100+rand.IntN(100))
		ua = fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
			osChoice, version)
	} else {
		version := fmt.Sprintf("%d.0", 80+rand.IntN(31))
		ua = fmt.Sprintf("Mozilla/5.0 (%s; rv:%s) Gecko/20100101 Firefox/%s",
			osChoice, version, version)
	}

	h := http.Header{}
	h.Set("User-Agent", ua)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	return h
}
