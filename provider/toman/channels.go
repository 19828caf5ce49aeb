package toman

import (
	"time"

	"github.com/iranianx/rate/extract"
	"github.com/iranianx/rate/storage/types"
)

// ChannelSpec declares how one Telegram channel is scanned and parsed
type ChannelSpec struct {
	// Channel is the public t.me channel name
	Channel string

	// Source labels the samples produced from this channel
	Source types.Source

	// Kind of the primary quote. USDT channels use the tether parser.
	Kind types.Kind

	Rule extract.Rule

	TTL time.Duration

	// DoubleCheckDepth deepens the re-scan for high-volume channels
	DoubleCheckDepth int

	// TakeNewest makes the re-scan always adopt the newest post
	TakeNewest bool
}

// Channels is the curated channel table. Include/exclude keywords are
// matched after normalization, so script variants hit too.
var Channels = []ChannelSpec{
	{
		Channel: "Herat_Tomen",
		Source:  "herat",
		Kind:    types.KindUSD,
		Rule: extract.Rule{
			Shape:   extract.ShapeBuySellMid,
			Include: []string{"دلار"},
			Exclude: []string{"یورو", "درهم", "حواله", "دینار"},
		},
		TTL: time.Minute * 45,
	},
	{
		Channel: "Dollar_Tehran3bze",
		Source:  "tehran",
		Kind:    types.KindUSD,
		Rule: extract.Rule{
			Shape:   extract.ShapeBuySellMid,
			Include: []string{"دلار", "نقدی"},
			Exclude: []string{"یورو", "حواله", "دینار"},
		},
		TTL: time.Minute * 45,
	},
	{
		Channel: "Dollar_Sulaymaniyah",
		Source:  "sulaymaniyah",
		Kind:    types.KindUSD,
		Rule: extract.Rule{
			Shape:  extract.ShapeDualCurrency,
			Needle: "کف مشهد",
		},
		TTL: time.Minute * 45,
	},
	{
		Channel:          "AbanTetherPrice",
		Source:           "abantether",
		Kind:             types.KindUSDT,
		Rule:             extract.Rule{Include: []string{"تتر"}},
		TTL:              time.Minute * 45,
		DoubleCheckDepth: 200,
		TakeNewest:       true,
	},
	{
		Channel:          "TetherLand",
		Source:           "tetherland",
		Kind:             types.KindUSDT,
		Rule:             extract.Rule{Include: []string{"تتر"}},
		TTL:              time.Minute * 45,
		DoubleCheckDepth: 200,
		TakeNewest:       true,
	},
}
