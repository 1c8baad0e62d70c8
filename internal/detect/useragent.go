package detect

import "strings"

// Classifier reason codes.
const (
	ReasonHeadless = "headless_or_inconsistent"
	ReasonKnownBot = "known_bot"
	ReasonClean    = "clean"
)

// UAClass is the declared-identity classification result.
type UAClass struct {
	Score             float64
	Reason            string
	KnownAutomation   bool
	LegitimateCrawler bool
	Browser           string
	OS                string
}

// ClassifyUserAgent inspects the declared identity string for automation
// markers, known non-human clients, and internal inconsistencies. First
// match wins; the function is pure.
func (r *Rules) ClassifyUserAgent(ua string) UAClass {
	lower := strings.ToLower(ua)
	browser := parseBrowser(lower)
	os := parsePlatform(lower)

	c := UAClass{Browser: browser, OS: os}

	for _, marker := range r.HeadlessMarkers {
		if strings.Contains(lower, marker) {
			c.Score = 0.9
			c.Reason = ReasonHeadless
			return c
		}
	}

	if uaInconsistent(lower, browser, os) {
		c.Score = 0.9
		c.Reason = ReasonHeadless
		return c
	}

	for _, bot := range r.KnownBots {
		if strings.Contains(lower, bot) {
			c.Score = 0.6
			c.Reason = ReasonKnownBot
			c.KnownAutomation = true
			// Lets downstream policy separate SEO crawlers from scrapers;
			// the current verdict logic does not consult it.
			c.LegitimateCrawler = true
			return c
		}
	}

	c.Score = 0.1
	c.Reason = ReasonClean
	return c
}

// uaInconsistent flags identity strings whose parsed browser or platform
// contradicts the raw string, the usual tell of a spoofed agent.
func uaInconsistent(lowerUA, browser, os string) bool {
	switch {
	case browser == "Chrome" && !strings.Contains(lowerUA, "chrome"):
		return true
	case browser == "Firefox" && !strings.Contains(lowerUA, "firefox"):
		return true
	case os == "Windows" && strings.Contains(lowerUA, "linux"):
		return true
	case os == "Linux" && strings.Contains(lowerUA, "windows"):
		return true
	}
	return false
}

// parseBrowser extracts the declared browser. CriOS/FxOS are the iOS builds
// of Chrome and Firefox, which never carry the desktop token.
func parseBrowser(lowerUA string) string {
	switch {
	case strings.Contains(lowerUA, "crios"):
		return "Chrome"
	case strings.Contains(lowerUA, "fxios"):
		return "Firefox"
	case strings.Contains(lowerUA, "edg"):
		return "Edge"
	case strings.Contains(lowerUA, "chrome"):
		return "Chrome"
	case strings.Contains(lowerUA, "firefox"):
		return "Firefox"
	case strings.Contains(lowerUA, "safari"):
		return "Safari"
	}
	return ""
}

// parsePlatform extracts the declared platform. Mobile platforms come first
// because iOS identity strings also contain "Mac OS X".
func parsePlatform(lowerUA string) string {
	switch {
	case strings.Contains(lowerUA, "iphone"), strings.Contains(lowerUA, "ipad"):
		return "iOS"
	case strings.Contains(lowerUA, "android"):
		return "Android"
	case strings.Contains(lowerUA, "windows"):
		return "Windows"
	case strings.Contains(lowerUA, "mac"):
		return "macOS"
	case strings.Contains(lowerUA, "linux"), strings.Contains(lowerUA, "x11"):
		return "Linux"
	}
	return ""
}
