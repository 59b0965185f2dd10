package sigmatch_test

import (
	"strings"
	"testing"

	"github.com/fwojciec/sigmatch"
	"github.com/stretchr/testify/assert"
)

// article builds a well-structured body with the given number of paragraphs.
func article(paragraphs int) string {
	parts := make([]string, paragraphs)
	for i := range parts {
		parts[i] = "Acme Corp announced quarterly results on Tuesday, beating analyst expectations across every division it reports on."
	}
	return strings.Join(parts, "\n\n")
}

func TestCheckQuality(t *testing.T) {
	t.Parallel()

	longDescription := "Acme Corp reported record revenue driven by strong demand for its cloud products."

	t.Run("accepts description when body is missing", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, sigmatch.QualityOK, sigmatch.CheckQuality("", longDescription))
	})

	t.Run("rejects short description when body is missing", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, sigmatch.QualityInsufficientContent, sigmatch.CheckQuality("", "Acme results"))
	})

	t.Run("rejects description of exactly fifty characters", func(t *testing.T) {
		t.Parallel()

		desc := strings.Repeat("a", 50)
		assert.Equal(t, sigmatch.QualityInsufficientContent, sigmatch.CheckQuality("", desc))
	})

	t.Run("treats short body as description only", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, sigmatch.QualityOK, sigmatch.CheckQuality("Read more", longDescription))
		assert.Equal(t, sigmatch.QualityInsufficientContent, sigmatch.CheckQuality("Read more", ""))
	})

	t.Run("accepts well-structured body", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, sigmatch.QualityOK, sigmatch.CheckQuality(article(5), ""))
	})

	t.Run("rejects paywall phrase in the first characters", func(t *testing.T) {
		t.Parallel()

		body := article(2) + "\n\nSubscribe to continue reading\n\n" + article(6)
		assert.Less(t, strings.Index(body, "Subscribe"), 1500)
		assert.Equal(t, sigmatch.QualityPaywall, sigmatch.CheckQuality(body, longDescription))
	})

	t.Run("ignores paywall phrase past the scan window", func(t *testing.T) {
		t.Parallel()

		body := article(30) + "\n\nSubscribe to continue reading"
		assert.Greater(t, strings.Index(body, "Subscribe"), sigmatch.PaywallScanChars)
		assert.Equal(t, sigmatch.QualityOK, sigmatch.CheckQuality(body, ""))
	})

	t.Run("rejects cookie wall", func(t *testing.T) {
		t.Parallel()

		body := "We use cookies to improve your experience. By clicking Accept All you consent to our use of cookies. " +
			"Manage preferences or read our privacy policy for more information about how we process data."
		assert.Equal(t, sigmatch.QualityCookieWall, sigmatch.CheckQuality(body, longDescription))
	})

	t.Run("rejects body without paragraph structure", func(t *testing.T) {
		t.Parallel()

		body := strings.Repeat("Home News Markets Technology Opinion Sign up Newsletter ", 10)
		assert.Equal(t, sigmatch.QualityNoStructure, sigmatch.CheckQuality(body, longDescription))
	})
}

func TestCountParagraphBreaks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, sigmatch.CountParagraphBreaks("one line"))
	assert.Equal(t, 1, sigmatch.CountParagraphBreaks("a\n\nb"))
	assert.Equal(t, 2, sigmatch.CountParagraphBreaks("a\n \nb\n\t\nc"))
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hé", sigmatch.TruncateRunes("héllo", 2))
	assert.Equal(t, "héllo", sigmatch.TruncateRunes("héllo", 10))
	assert.Empty(t, sigmatch.TruncateRunes("héllo", 0))
}
