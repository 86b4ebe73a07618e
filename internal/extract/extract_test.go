package extract

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/directory-crawler/internal/cfemail"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

const listingHTML = `<html><body>
<div class="company-card"><h3 class="company-card__title"><a href="/firma-a,123">A</a></h3></div>
<div class="company-card"><h3 class="company-card__title"><a href="">empty</a></h3></div>
<div class="company-card"><h3 class="company-card__title"><a href="https://gowork.de/firma-b,456">B</a></h3></div>
<div class="other-card"><h3 class="company-card__title"><a href="/ignored">X</a></h3></div>
<div class="company-card"><h3 class="company-card__title"><a href="firma-c,789?x=1">C</a></h3></div>
</body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := ParseDocument([]byte(html))
	require.NoError(t, err)
	return doc
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(Config{BaseURL: "https://gowork.de"})
	require.NoError(t, err)
	return e
}

func TestNewRejectsRelativeBase(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "/relative"})
	require.Error(t, err)
	_, err = New(Config{BaseURL: "http://%"})
	require.Error(t, err)
}

func TestCompanyURLs(t *testing.T) {
	t.Parallel()

	got := newExtractor(t).CompanyURLs(mustDoc(t, listingHTML))
	require.Equal(t, []string{
		"https://gowork.de/firma-a,123",
		"https://gowork.de/firma-b,456",
		"https://gowork.de/firma-c,789?x=1",
	}, got)
}

func TestCompanyURLsEmptyPage(t *testing.T) {
	t.Parallel()

	got := newExtractor(t).CompanyURLs(mustDoc(t, `<html><body><p>Keine Ergebnisse</p></body></html>`))
	require.Empty(t, got)
}

func detailHTML(email, ldJSON string) string {
	return `<html><head>
<script type="application/ld+json">` + ldJSON + `</script>
</head><body>
<div class="company-header__web-page"><span data-href="https://firma.example">Web</span></div>
<h2 class="company-header__title">
   Firma GmbH
</h2>
<a class="__cf_email__" data-cfemail="` + cfemail.Encode(0x5a, email) + `">[email protected]</a>
</body></html>`
}

func TestDetailAllFields(t *testing.T) {
	t.Parallel()

	ld := `{"@type":"AggregateRating","itemReviewed":{"@type":"LocalBusiness","telephone":"+49 30 123"},` +
		`"ratingValue":4.5,"ratingCount":"12"}`
	got := newExtractor(t).Detail(mustDoc(t, detailHTML("info@firma.example", ld)))

	require.Equal(t, crawler.CompanyRecord{
		CompanyName: "Firma GmbH",
		Website:     "https://firma.example",
		Email:       "info@firma.example",
		Phone:       "+49 30 123",
		RatingValue: "4.5",
		RatingCount: "12",
	}, got)
}

func TestDetailMissingOptionalFields(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body><p>nothing here</p></body></html>`)
	got := newExtractor(t).Detail(doc)
	require.Equal(t, crawler.CompanyRecord{
		RatingValue: "0",
		RatingCount: "0",
	}, got)
}

func TestEmailUndecodable(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<a class="__cf_email__" data-cfemail="not-hex">x</a>`)
	require.Empty(t, Email(doc))

	doc = mustDoc(t, `<a class="__cf_email__">x</a>`)
	require.Empty(t, Email(doc))
}

func TestEmailScenarioVector(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<a class="__cf_email__" data-cfemail="422302206c212d2f">[email protected]</a>`)
	require.Equal(t, "a@b.com", Email(doc))
}

func TestStructuredData(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		scripts  string
		expected Rating
	}{
		{
			name:     "malformed json degrades to defaults",
			scripts:  `<script type="application/ld+json">{"itemReviewed": {</script>`,
			expected: Rating{RatingValue: "0", RatingCount: "0"},
		},
		{
			name:     "array is not an object",
			scripts:  `<script type="application/ld+json">[1,2]</script>`,
			expected: Rating{RatingValue: "0", RatingCount: "0"},
		},
		{
			name:     "missing rating fields",
			scripts:  `<script type="application/ld+json">{"itemReviewed":{"telephone":"0800"}}</script>`,
			expected: Rating{Phone: "0800", RatingValue: "0", RatingCount: "0"},
		},
		{
			name: "nested aggregate rating",
			scripts: `<script type="application/ld+json">` +
				`{"@type":"LocalBusiness","aggregateRating":{"ratingValue":"3.9","ratingCount":7}}</script>`,
			expected: Rating{RatingValue: "3.9", RatingCount: "7"},
		},
		{
			name: "first decodable block wins",
			scripts: `<script type="application/ld+json">oops</script>` +
				`<script type="application/ld+json">{"ratingValue":5,"ratingCount":1}</script>` +
				`<script type="application/ld+json">{"ratingValue":1,"ratingCount":99}</script>`,
			expected: Rating{RatingValue: "5", RatingCount: "1"},
		},
		{
			name:     "blank strings fall back",
			scripts:  `<script type="application/ld+json">{"ratingValue":" ","ratingCount":""}</script>`,
			expected: Rating{RatingValue: "0", RatingCount: "0"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc := mustDoc(t, `<html><head>`+tc.scripts+`</head><body></body></html>`)
			require.Equal(t, tc.expected, StructuredData(doc))
		})
	}
}

func TestMalformedStructuredDataKeepsOtherFields(t *testing.T) {
	t.Parallel()

	got := newExtractor(t).Detail(mustDoc(t, detailHTML("a@b.com", `{broken`)))
	require.Equal(t, "a@b.com", got.Email)
	require.Equal(t, "Firma GmbH", got.CompanyName)
	require.Equal(t, "https://firma.example", got.Website)
	require.Equal(t, "0", got.RatingValue)
	require.Equal(t, "0", got.RatingCount)
	require.Empty(t, got.Phone)
}

func TestCompanyNameNormalizesToNFC(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, "<h2 class=\"company-header__title\">  Mu\u0308ller Bau  </h2>")
	require.Equal(t, "M\u00fcller Bau", CompanyName(doc))
}
