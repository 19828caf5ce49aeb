package farsi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFarsi_Digits(t *testing.T) {
	t.Parallel()

	testTable := []struct {
		name     string
		input    string
		expected string
	}{
		{
			"empty input",
			"",
			"",
		},
		{
			"persian digits",
			"۹۳۰۰۰",
			"93000",
		},
		{
			"arabic-indic digits",
			"٩٣٠٠٠",
			"93000",
		},
		{
			"mixed digits and separators",
			"۹۲٬۵۰۰ و ٩٢٫٥",
			"92,500 و 92.5",
		},
		{
			"ascii passthrough",
			"USD 93,000",
			"USD 93,000",
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, Digits(testCase.input))
		})
	}
}

func TestFarsi_Normalize(t *testing.T) {
	t.Parallel()

	testTable := []struct {
		name     string
		input    string
		expected string
	}{
		{
			"empty input",
			"",
			"",
		},
		{
			"arabic letter variants",
			"دلار امريكا",
			"دلار امریکا",
		},
		{
			"zwnj becomes a space",
			"می‌فروشم",
			"می فروشم",
		},
		{
			"tatweel dropped",
			"نـــقـدی",
			"نقدی",
		},
		{
			"whitespace collapsed and trimmed",
			"  فروش   ۹۳۰۰۰  ",
			"فروش 93000",
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, Normalize(testCase.input))
		})
	}
}

func TestFarsi_NormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"دلار نقدی ۹۳٬۰۰۰ تومان",
		"می‌فروشم ١٠٠ دلار",
		"plain ascii text 12345",
		"نـــقـدی كيلو",
	}

	for _, input := range inputs {
		once := Normalize(input)

		assert.Equal(t, once, Normalize(once))
	}
}

func TestFarsi_DigitRoundTrip(t *testing.T) {
	t.Parallel()

	// Persian digit strings must map to the equivalent ASCII integer
	// string with no digits lost or reordered
	testTable := []struct {
		persian string
		ascii   string
	}{
		{"۰", "0"},
		{"۱۲۳۴۵۶۷۸۹", "123456789"},
		{"٩٨٧٦٥٤٣٢١٠", "9876543210"},
	}

	for _, testCase := range testTable {
		assert.Equal(t, testCase.ascii, Normalize(testCase.persian))
		assert.Equal(t, testCase.ascii, Digits(testCase.persian))
	}
}

func TestFarsi_ContainsAny(t *testing.T) {
	t.Parallel()

	t.Run("script variant match", func(t *testing.T) {
		t.Parallel()

		// Arabic yeh in the text, Persian yeh in the keyword
		assert.True(t, ContainsAny("دلار امريكا", []string{"امریکا"}))
	})

	t.Run("tatweel stretched keyword", func(t *testing.T) {
		t.Parallel()

		assert.True(t, ContainsAny("نـــقـدی ۹۳۰۰۰", []string{"نقدی"}))
	})

	t.Run("no match", func(t *testing.T) {
		t.Parallel()

		assert.False(t, ContainsAny("یورو ۱۱۰۰۰۰", []string{"دلار", "تتر"}))
	})

	t.Run("empty keyword ignored", func(t *testing.T) {
		t.Parallel()

		assert.False(t, ContainsAny("یورو", []string{""}))
	})
}
