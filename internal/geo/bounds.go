package geo

import (
	"math"
	"sort"
)

const (
	metersPerDegreeLatitude      = 110574.0
	earthEquatorialRadius        = 6378137.0
	earthEccentricitySquared     = 0.00669447819799
	earthMeridionalCircumference = 40007860.0
	degreesEpsilon               = 1e-12
	maxQueryBits                 = 22 * bitsPerChar

	// The box is measured on the ellipsoid while Distance uses a sphere,
	// which is up to ~0.5% wider in longitude near the poles.
	boxPadding = 1.01
)

// BoundingRanges returns the cell key ranges that together cover every
// point within radius meters of center. Ranges may include cells outside
// the radius; callers filter with Distance.
func (ix *Index) BoundingRanges(center Point, radius float64) []Range {
	if !(radius > 0) {
		radius = 1
	}
	radius *= boxPadding

	bits := boundingBoxBits(center, radius)
	if bits > ix.precision*bitsPerChar {
		bits = ix.precision * bitsPerChar
	}
	if bits < 1 {
		bits = 1
	}
	precision := (bits + bitsPerChar - 1) / bitsPerChar

	seen := make(map[Range]struct{}, 9)
	ranges := make([]Range, 0, 9)
	for _, p := range boundingBoxPoints(center, radius) {
		r := hashRange(encode(p, precision), bits)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		ranges = append(ranges, r)
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	return ranges
}

// boundingBoxBits is the number of geohash bits whose cells are at least
// size meters across at every latitude of the query box.
func boundingBoxBits(center Point, size float64) int {
	latDelta := size / metersPerDegreeLatitude
	latNorth := math.Min(90, center.Lat+latDelta)
	latSouth := math.Max(-90, center.Lat-latDelta)

	bitsLat := int(math.Floor(latitudeBitsForResolution(size))) * 2
	bitsLngNorth := int(math.Floor(longitudeBitsForResolution(size, latNorth)))*2 - 1
	bitsLngSouth := int(math.Floor(longitudeBitsForResolution(size, latSouth)))*2 - 1

	return min(bitsLat, bitsLngNorth, bitsLngSouth, maxQueryBits)
}

func boundingBoxPoints(center Point, radius float64) []Point {
	latDegrees := radius / metersPerDegreeLatitude
	latNorth := math.Min(90, center.Lat+latDegrees)
	latSouth := math.Max(-90, center.Lat-latDegrees)
	lngDegrees := math.Max(
		metersToLongitudeDegrees(radius, latNorth),
		metersToLongitudeDegrees(radius, latSouth),
	)
	west := wrapLongitude(center.Lng - lngDegrees)
	east := wrapLongitude(center.Lng + lngDegrees)

	return []Point{
		{center.Lat, center.Lng},
		{center.Lat, west},
		{center.Lat, east},
		{latNorth, center.Lng},
		{latNorth, west},
		{latNorth, east},
		{latSouth, center.Lng},
		{latSouth, west},
		{latSouth, east},
	}
}

func metersToLongitudeDegrees(distance, lat float64) float64 {
	rad := degToRad(lat)
	num := math.Cos(rad) * earthEquatorialRadius * math.Pi / 180
	denom := 1 / math.Sqrt(1-earthEccentricitySquared*math.Sin(rad)*math.Sin(rad))
	deltaDeg := num * denom
	if deltaDeg < degreesEpsilon {
		if distance > 0 {
			return 360
		}
		return 0
	}
	return math.Min(360, distance/deltaDeg)
}

func longitudeBitsForResolution(resolution, lat float64) float64 {
	degs := metersToLongitudeDegrees(resolution, lat)
	if math.Abs(degs) > 0.000001 {
		return math.Max(1, math.Log2(360/degs))
	}
	return 1
}

func latitudeBitsForResolution(resolution float64) float64 {
	return math.Min(math.Log2(earthMeridionalCircumference/2/resolution), maxQueryBits)
}

func wrapLongitude(lng float64) float64 {
	if lng <= 180 && lng >= -180 {
		return lng
	}
	adjusted := lng + 180
	if adjusted > 0 {
		return math.Mod(adjusted, 360) - 180
	}
	return 180 - math.Mod(-adjusted, 360)
}
