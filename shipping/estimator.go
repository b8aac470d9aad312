// Package shipping estimates domestic parcel post prices from static tables.
//
// All amounts are computed in rials. The customer facing figure is expressed
// in tomans (ten rials) rounded to the nearest thousand.
package shipping

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownProvince = errors.New("unknown province")
	ErrInvalidWeight   = errors.New("weight must be positive")
	ErrInvalidValue    = errors.New("declared value must not be negative")
)

// Tier classifies a shipment by distance.
type Tier string

const (
	TierIntra    Tier = "intra"
	TierAdjacent Tier = "adjacent"
	TierInter    Tier = "inter"
)

// RateTable holds the rial prices of one tier.
type RateTable struct {
	UpTo500g     int64
	UpTo1kg      int64
	UpTo2kg      int64
	PerExtraKilo int64
}

var rateTables = map[Tier]RateTable{
	TierIntra:    {UpTo500g: 350_000, UpTo1kg: 450_000, UpTo2kg: 600_000, PerExtraKilo: 150_000},
	TierAdjacent: {UpTo500g: 450_000, UpTo1kg: 580_000, UpTo2kg: 780_000, PerExtraKilo: 200_000},
	TierInter:    {UpTo500g: 550_000, UpTo1kg: 700_000, UpTo2kg: 950_000, PerExtraKilo: 250_000},
}

const (
	// InsuranceRatePermille applies to the declared value up to MaxInsuredValue.
	InsuranceRatePermille = 2
	MaxInsuredValue       = 500_000_000
	// OversizeThresholdCm is exceeded when any single dimension is longer.
	OversizeThresholdCm = 45
	OversizePercent     = 25
	PackagingFee        = 60_000
	RialsPerToman       = 10
	DisplayRounding     = 1_000
)

// Parcel is what the estimator needs to know about a shipment.
type Parcel struct {
	Origin       string `json:"origin"`
	Destination  string `json:"destination" binding:"required"`
	WeightGrams  uint   `json:"weightGrams" binding:"required"`
	DeclaredRial int64  `json:"declaredValue"`
	LengthCm     uint   `json:"length"`
	WidthCm      uint   `json:"width"`
	HeightCm     uint   `json:"height"`
}

// Quote is an itemised price in rials.
type Quote struct {
	Tier         Tier            `json:"tier"`
	Base         decimal.Decimal `json:"base"`
	Insurance    decimal.Decimal `json:"insurance"`
	Oversize     decimal.Decimal `json:"oversize"`
	Packaging    decimal.Decimal `json:"packaging"`
	TotalRial    decimal.Decimal `json:"totalRial"`
	DisplayToman decimal.Decimal `json:"displayToman"`
}

// Classify returns the distance tier between two provinces.
func Classify(origin, destination string) (Tier, error) {
	o, d := NormalizeProvince(origin), NormalizeProvince(destination)
	if _, ok := provinceNames[o]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvince, origin)
	}
	if _, ok := provinceNames[d]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvince, destination)
	}

	switch {
	case o == d:
		return TierIntra, nil
	case adjacency[o][d]:
		return TierAdjacent, nil
	default:
		return TierInter, nil
	}
}

// BaseRate looks up the weight bracket price for tier.
func BaseRate(tier Tier, weightGrams uint) int64 {
	table := rateTables[tier]
	switch {
	case weightGrams <= 500:
		return table.UpTo500g
	case weightGrams <= 1000:
		return table.UpTo1kg
	case weightGrams <= 2000:
		return table.UpTo2kg
	}
	// every started kilogram above two costs PerExtraKilo
	extra := (int64(weightGrams) - 2000 + 999) / 1000
	return table.UpTo2kg + extra*table.PerExtraKilo
}

// Estimate prices a parcel.
func Estimate(p Parcel) (Quote, error) {
	if p.WeightGrams == 0 {
		return Quote{}, ErrInvalidWeight
	}
	if p.DeclaredRial < 0 {
		return Quote{}, ErrInvalidValue
	}
	tier, err := Classify(p.Origin, p.Destination)
	if err != nil {
		return Quote{}, err
	}

	base := decimal.NewFromInt(BaseRate(tier, p.WeightGrams))

	insured := p.DeclaredRial
	if insured > MaxInsuredValue {
		insured = MaxInsuredValue
	}
	insurance := decimal.NewFromInt(insured).
		Mul(decimal.NewFromInt(InsuranceRatePermille)).
		Div(decimal.NewFromInt(1000)).
		Round(0)

	oversize := decimal.Zero
	if p.LengthCm > OversizeThresholdCm || p.WidthCm > OversizeThresholdCm || p.HeightCm > OversizeThresholdCm {
		oversize = base.Mul(decimal.NewFromInt(OversizePercent)).Div(decimal.NewFromInt(100)).Round(0)
	}

	packaging := decimal.NewFromInt(PackagingFee)
	total := base.Add(insurance).Add(oversize).Add(packaging)

	return Quote{
		Tier:         tier,
		Base:         base,
		Insurance:    insurance,
		Oversize:     oversize,
		Packaging:    packaging,
		TotalRial:    total,
		DisplayToman: ToDisplayToman(total),
	}, nil
}

// ToDisplayToman converts rials to tomans rounded to the nearest thousand.
func ToDisplayToman(rial decimal.Decimal) decimal.Decimal {
	step := decimal.NewFromInt(DisplayRounding)
	toman := rial.Div(decimal.NewFromInt(RialsPerToman))
	return toman.Div(step).Round(0).Mul(step)
}
