package sigmatch

import (
	"regexp"
	"strings"
)

// QualityReason explains why an article passed or failed the content quality bar.
type QualityReason string

// Quality outcomes.
const (
	QualityOK                  QualityReason = "ok"
	QualityInsufficientContent QualityReason = "insufficient_content"
	QualityPaywall             QualityReason = "paywall"
	QualityCookieWall          QualityReason = "cookie_wall"
	QualityNoStructure         QualityReason = "no_structure"
)

// Quality thresholds.
const (
	// MinDescriptionChars is the description length required when there is no usable body.
	MinDescriptionChars = 50

	// MinBodyChars is the body length below which a body is ignored.
	MinBodyChars = 100

	// PaywallScanChars limits how much of the body is scanned for gating phrases.
	PaywallScanChars = 2000

	// CookieWallMaxChars is the body length under which cookie boilerplate dominates.
	CookieWallMaxChars = 1500

	// MinParagraphBreaks is the number of blank-line breaks a real article has.
	MinParagraphBreaks = 3
)

var (
	paywallPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)subscribe (now )?to (continue|keep) reading`),
		regexp.MustCompile(`(?i)subscribe to (read|access|unlock)`),
		regexp.MustCompile(`(?i)sign (up|in) to (continue|keep) reading`),
		regexp.MustCompile(`(?i)(log|sign) ?in to (read|access|view) (the|this) (full )?(article|story)`),
		regexp.MustCompile(`(?i)already (a|an) (subscriber|member)\?`),
		regexp.MustCompile(`(?i)create (a )?free account to (continue|read)`),
		regexp.MustCompile(`(?i)this (article|content|story) is (only )?(available|reserved) (to|for) (paid )?(subscribers|members)`),
		regexp.MustCompile(`(?i)you have reached (your|the) (free )?(article|story) limit`),
	}

	cookiePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcookies?\b`),
		regexp.MustCompile(`(?i)\bconsent\b`),
		regexp.MustCompile(`(?i)accept all`),
		regexp.MustCompile(`(?i)manage (your )?(preferences|settings|choices)`),
		regexp.MustCompile(`(?i)privacy (policy|settings|notice)`),
	}

	paragraphBreakRe = regexp.MustCompile(`\n[ \t]*\n`)
)

// CheckQuality decides whether an article's scraped text is real content.
// Bodies shorter than MinBodyChars are treated as absent, in which case the
// description must carry the article.
func CheckQuality(fullText, description string) QualityReason {
	body := strings.TrimSpace(fullText)
	if len([]rune(body)) < MinBodyChars {
		if len([]rune(strings.TrimSpace(description))) > MinDescriptionChars {
			return QualityOK
		}
		return QualityInsufficientContent
	}

	if IsPaywalled(body) {
		return QualityPaywall
	}
	if IsCookieWall(body) {
		return QualityCookieWall
	}
	if CountParagraphBreaks(body) < MinParagraphBreaks {
		return QualityNoStructure
	}
	return QualityOK
}

// IsPaywalled reports whether the start of the body contains subscription gating phrases.
func IsPaywalled(body string) bool {
	head := TruncateRunes(body, PaywallScanChars)
	for _, re := range paywallPatterns {
		if re.MatchString(head) {
			return true
		}
	}
	return false
}

// IsCookieWall reports whether a short body is dominated by cookie-consent boilerplate.
// At least two distinct consent phrases must appear.
func IsCookieWall(body string) bool {
	if len([]rune(body)) >= CookieWallMaxChars {
		return false
	}
	hits := 0
	for _, re := range cookiePatterns {
		if re.MatchString(body) {
			hits++
		}
	}
	return hits >= 2
}

// CountParagraphBreaks counts blank-line paragraph breaks in text.
func CountParagraphBreaks(text string) int {
	return len(paragraphBreakRe.FindAllStringIndex(text, -1))
}

// TruncateRunes returns at most n runes of s without splitting a character.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
