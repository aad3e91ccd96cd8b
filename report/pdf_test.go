package report

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"welfare-server-go/models"
)

func sample(n int) []models.Household {
	out := make([]models.Household, n)
	tiers := models.Classifications
	for i := range out {
		out[i] = models.Household{
			ID:             int64(i + 1),
			Name:           fmt.Sprintf("Warga %03d", i+1),
			Education:      "SMA/SMK",
			NumChildren:    i % 5,
			MonthlyIncome:  float64(1_000_000 * (i%9 + 1)),
			Occupation:     "Buruh / Tani / Pekerja kasar",
			Classification: tiers[i%len(tiers)],
			CreatedAt:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func TestWriteSinglePage(t *testing.T) {
	var buf bytes.Buffer
	pages, err := Write(&buf, sample(5), "Data kemiskinan Q4 2025", time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, pages)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Contains(t, buf.String(), "%%EOF")
}

func TestWriteManyRowsSpansPages(t *testing.T) {
	var buf bytes.Buffer
	pages, err := Write(&buf, sample(150), "", time.Now())
	require.NoError(t, err)
	assert.Greater(t, pages, 2)
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	pages, err := Write(&buf, nil, "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestFormatRupiah(t *testing.T) {
	assert.Equal(t, "0", formatRupiah(0))
	assert.Equal(t, "950", formatRupiah(950))
	assert.Equal(t, "2.500.000", formatRupiah(2_500_000))
	assert.Equal(t, "1.234.567,89", formatRupiah(1_234_567.89))
	assert.Equal(t, "-12.000", formatRupiah(-12_000))
}

func TestFit(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont(fontFamily, "", 8)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	assert.Equal(t, "short", fit(pdf, tr, "short", 30))

	long := strings.Repeat("Buruh / Tani / Pekerja kasar ", 3)
	got := fit(pdf, tr, long, 30)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, pdf.GetStringWidth(got), 30.0)
}

func TestFitKeepsAccentedLetters(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont(fontFamily, "", 8)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	name := strings.Repeat("Éé", 20)
	got := fit(pdf, tr, name, 20)

	require.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, pdf.GetStringWidth(got), 20.0)
	assert.NotContains(t, got, "\uFFFD")
	assert.NotContains(t, got, "\xef\xbf\xbd")
	kept := strings.TrimSuffix(got, "...")
	assert.NotEmpty(t, kept)
	// every kept byte is a cp1252 É or é
	for i := 0; i < len(kept); i++ {
		assert.Contains(t, []byte{0xC9, 0xE9}, kept[i])
	}
}

func TestWriteAccentedNames(t *testing.T) {
	rows := sample(1)
	rows[0].Name = strings.Repeat("Müller-Hervé ", 6)

	var buf bytes.Buffer
	_, err := Write(&buf, rows, "", time.Now())
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "\xef\xbf\xbd")
}
