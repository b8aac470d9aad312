package shipping

// Line is one packed item kind and how many units of it go in the parcel.
type Line struct {
	Quantity    uint
	WeightGrams uint
	LengthCm    uint
	WidthCm     uint
	HeightCm    uint
}

// Pack builds the parcel for a set of lines: weights add up, units are
// stacked on their height, and the footprint is the largest of the lines.
func Pack(origin, destination string, declaredRial int64, lines ...Line) Parcel {
	p := Parcel{Origin: origin, Destination: destination, DeclaredRial: declaredRial}
	for _, line := range lines {
		p.WeightGrams += line.WeightGrams * line.Quantity
		p.HeightCm += line.HeightCm * line.Quantity
		p.LengthCm = max(p.LengthCm, line.LengthCm)
		p.WidthCm = max(p.WidthCm, line.WidthCm)
	}
	return p
}
