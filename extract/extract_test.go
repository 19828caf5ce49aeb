package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_StripNoise(t *testing.T) {
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
			"phone number removed",
			"تماس 09123456789 فروش",
			"تماس 0 فروش",
		},
		{
			"phone with country prefix removed",
			"تماس +98 912 345 6789",
			"تماس",
		},
		{
			"clock time removed",
			"ساعت 8:30 فروش 93000",
			"ساعت فروش 93000",
		},
		{
			"clock with seconds removed",
			"بروزرسانی 14:05:30",
			"بروزرسانی",
		},
		{
			"long date removed",
			"تاریخ 2025-08-31 فروش 93000",
			"تاریخ فروش 93000",
		},
		{
			"jalali date removed",
			"1404/06/09 دلار 93000",
			"دلار 93000",
		},
		{
			"short date removed",
			"08/31 دلار 93000",
			"دلار 93000",
		},
		{
			"price untouched",
			"دلار 93,000 تومان",
			"دلار 93,000 تومان",
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, StripNoise(testCase.input))
		})
	}
}

func TestExtract_Numbers(t *testing.T) {
	t.Parallel()

	testTable := []struct {
		name     string
		input    string
		expected []float64
	}{
		{
			"no numbers",
			"دلار تومان",
			nil,
		},
		{
			"grouped thousands",
			"فروش 93,000 تومان",
			[]float64{93000},
		},
		{
			"space grouped thousands",
			"فروش 93 000 تومان",
			[]float64{93000},
		},
		{
			"k shorthand",
			"دلار 93k",
			[]float64{93000},
		},
		{
			"fractional k shorthand",
			"تتر 92.7k",
			[]float64{92700},
		},
		{
			"bare digit run",
			"93000",
			[]float64{93000},
		},
		{
			"low high pair",
			"93000/94000",
			[]float64{93000, 94000},
		},
		{
			"phone number yields nothing",
			"قیمت: 09123456789",
			nil,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, Numbers(testCase.input))
		})
	}
}

func TestExtract_Values(t *testing.T) {
	t.Parallel()

	band := Band{Min: 80_000, Max: 130_000}

	testTable := []struct {
		name     string
		input    string
		expected []float64
	}{
		{
			"persian digits scaled into band",
			"فروش ۹۳۰۰۰ تومان",
			[]float64{93000},
		},
		{
			"two digit shorthand times thousand",
			"دلار 93 تومان",
			[]float64{93000},
		},
		{
			"four digit value discarded",
			"دلار 9300",
			[]float64{},
		},
		{
			"out of band dropped",
			"دینار 45000 دلار 93000",
			[]float64{93000},
		},
		{
			"clock noise does not shadow the price",
			"ساعت 8:30 فروش 93000",
			[]float64{93000},
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, Values(testCase.input, band))
		})
	}
}

func TestExtract_BandContains(t *testing.T) {
	t.Parallel()

	t.Run("zero band accepts everything", func(t *testing.T) {
		t.Parallel()

		assert.True(t, Band{}.Contains(1))
		assert.True(t, Band{}.Contains(1e9))
	})

	t.Run("bounded band", func(t *testing.T) {
		t.Parallel()

		b := Band{Min: 80_000, Max: 130_000}

		assert.True(t, b.Contains(93_000))
		assert.False(t, b.Contains(45_000))
		assert.False(t, b.Contains(150_000))
	})
}

func TestExtract_Quantities(t *testing.T) {
	t.Parallel()

	qty := Quantities("می‌فروشم 100 دلار نقدی 93000")

	_, has100 := qty[100]
	_, has93000 := qty[93000]

	assert.True(t, has100)
	assert.False(t, has93000)
}

func TestExtract_Candidates(t *testing.T) {
	t.Parallel()

	band := Band{Min: 80_000, Max: 130_000}

	t.Run("keyword anchored", func(t *testing.T) {
		t.Parallel()

		got := Candidates("دلار نقدی 93000 تومان", []string{"دلار"}, band)

		require.Len(t, got, 1)
		assert.Equal(t, float64(93000), got[0].Value)
	})

	t.Run("closest number to the keyword first", func(t *testing.T) {
		t.Parallel()

		got := Candidates("حواله 92500 تومان قیمت دلار 93000", []string{"دلار"}, band)

		require.Len(t, got, 2)
		assert.Equal(t, float64(93000), got[0].Value)
		assert.Equal(t, float64(92500), got[1].Value)
	})

	t.Run("quantity near currency word excluded", func(t *testing.T) {
		t.Parallel()

		got := Candidates("می‌فروشم 100 دلار به 93000", []string{"دلار"}, band)

		require.Len(t, got, 1)
		assert.Equal(t, float64(93000), got[0].Value)
	})

	t.Run("whole text fallback", func(t *testing.T) {
		t.Parallel()

		got := Candidates("نقدی 93000 تومان", []string{"دلار"}, band)

		require.Len(t, got, 1)
		assert.Equal(t, float64(93000), got[0].Value)
	})

	t.Run("no plausible number", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, Candidates("دلار تومان", []string{"دلار"}, band))
	})

	t.Run("phone number is not a candidate", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, Candidates("قیمت: 09123456789", []string{"قیمت"}, band))
	})
}

func TestExtract_SplitUSDEUR(t *testing.T) {
	t.Parallel()

	t.Run("pair within ratio tolerance", func(t *testing.T) {
		t.Parallel()

		usd, eur, ok := SplitUSDEUR([]float64{93000, 110000}, 1.18, 7)

		require.True(t, ok)
		assert.Equal(t, float64(93000), usd)
		assert.Equal(t, float64(110000), eur)
	})

	t.Run("order independent", func(t *testing.T) {
		t.Parallel()

		usd, eur, ok := SplitUSDEUR([]float64{110000, 93000}, 1.18, 7)

		require.True(t, ok)
		assert.Equal(t, float64(93000), usd)
		assert.Equal(t, float64(110000), eur)
	})

	t.Run("ratio too far off", func(t *testing.T) {
		t.Parallel()

		_, _, ok := SplitUSDEUR([]float64{93000, 140000}, 1.18, 7)

		assert.False(t, ok)
	})

	t.Run("single number", func(t *testing.T) {
		t.Parallel()

		_, _, ok := SplitUSDEUR([]float64{93000}, 1.18, 7)

		assert.False(t, ok)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		t.Parallel()

		_, _, ok := SplitUSDEUR([]float64{93000, 93000}, 1.18, 7)

		assert.False(t, ok)
	})
}
