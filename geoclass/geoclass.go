// Package geoclass classifies coordinates into the geographic categories
// used when reviewing expedition clusters: named research regions, island
// groups, latitude and elevation bands, biome estimates, and biogeographic
// realms. Classification is heuristic, driven by bounding-box tables; for
// publication-grade assignments use proper ecoregion shapefiles.
package geoclass

import (
	"math"

	"github.com/paulmach/orb"
)

// box is a lat/lon bounding box. A min longitude greater than the max
// means the box crosses the dateline.
type box struct {
	minLat, maxLat float64
	minLon, maxLon float64
}

func (b box) contains(lat, lon float64) bool {
	if lat < b.minLat || lat > b.maxLat {
		return false
	}
	if b.minLon <= b.maxLon {
		return lon >= b.minLon && lon <= b.maxLon
	}
	return lon >= b.minLon || lon <= b.maxLon
}

type namedRegion struct {
	name string
	box  box
}

// namedRegions lists recognized research regions. Order matters: the
// first matching box wins, so broad groupings like Melanesia sit below
// the specific islands they cover.
var namedRegions = []namedRegion{
	// Pacific islands
	{"Galapagos", box{-1.8, 1.0, -92.5, -89.0}},
	{"Hawaii", box{18.5, 23.0, -161.0, -154.0}},
	{"Fiji", box{-21.0, -12.0, 177.0, -179.0}}, // crosses the dateline
	{"Samoa", box{-15.0, -13.0, -173.0, -168.0}},
	{"Solomon Islands", box{-12.0, -5.0, 155.0, 170.0}},
	{"Vanuatu", box{-21.0, -13.0, 166.0, 171.0}},
	{"New Caledonia", box{-23.0, -19.0, 163.0, 169.0}},

	// Caribbean and Atlantic islands
	{"Bahamas", box{20.0, 27.5, -80.0, -72.0}},
	{"Caribbean", box{10.0, 27.0, -85.0, -60.0}},
	{"Canary Islands", box{27.5, 29.5, -18.5, -13.0}},
	{"Azores", box{36.5, 40.0, -31.5, -25.0}},
	{"Bermuda", box{32.0, 32.5, -65.0, -64.5}},

	// Indian Ocean
	{"Madagascar", box{-26.0, -11.5, 43.0, 51.0}},
	{"Seychelles", box{-10.5, -3.5, 46.0, 56.5}},
	{"Sri Lanka", box{5.9, 10.0, 79.5, 82.0}},

	// Malay Archipelago
	{"Philippines", box{4.5, 21.5, 116.0, 127.0}},
	{"Borneo", box{-4.5, 7.5, 108.5, 119.5}},
	{"Sulawesi", box{-6.0, 2.0, 118.5, 125.5}},
	{"Java", box{-8.8, -5.9, 105.0, 114.5}},
	{"Sumatra", box{-6.0, 6.0, 95.0, 106.0}},
	{"New Guinea", box{-11.0, 0.0, 130.0, 151.0}},

	// Broad Pacific groupings, below the named islands they contain
	{"Micronesia", box{0.0, 15.0, 130.0, 170.0}},
	{"Melanesia", box{-25.0, 0.0, 140.0, 180.0}},
	{"Polynesia", box{-30.0, -5.0, -180.0, -120.0}},

	// Other notable islands
	{"Taiwan", box{21.5, 25.5, 119.5, 122.5}},
	{"Japan", box{24.0, 46.0, 122.0, 146.0}},
	{"New Zealand", box{-48.0, -34.0, 166.0, 179.0}},
	{"Tasmania", box{-44.0, -40.0, 144.0, 149.0}},
	{"Iceland", box{63.0, 66.5, -24.5, -13.0}},
	{"British Isles", box{49.5, 61.0, -11.0, 2.0}},

	// Continental regions of interest
	{"Baja California", box{22.5, 32.5, -118.0, -109.0}},
	{"Central America", box{7.0, 18.5, -92.5, -77.0}},
	{"Amazon Basin", box{-20.0, 5.0, -75.0, -45.0}},
	{"Andes", box{-55.0, 10.0, -80.0, -65.0}},
	{"Patagonia", box{-55.0, -38.0, -76.0, -63.0}},
	{"Mediterranean Basin", box{30.0, 46.0, -6.0, 36.0}},
	{"Sahara", box{15.0, 35.0, -17.0, 35.0}},
	{"Congo Basin", box{-10.0, 5.0, 10.0, 30.0}},
	{"East African Rift", box{-15.0, 12.0, 29.0, 42.0}},
	{"Himalayas", box{26.0, 36.0, 73.0, 95.0}},

	// Polar and subpolar
	{"Arctic", box{66.5, 90.0, -180.0, 180.0}},
	{"Antarctic", box{-90.0, -60.0, -180.0, 180.0}},
	{"Subantarctic Islands", box{-60.0, -45.0, -180.0, 180.0}},
	{"Alaska", box{54.0, 72.0, -180.0, -130.0}},
	{"Greenland", box{59.0, 84.0, -73.0, -11.0}},
}

// islandGroups maps broader island groupings to their member regions; a
// coordinate inside any member is treated as an island locality.
var islandGroups = map[string][]string{
	"Pacific Islands": {"Galapagos", "Hawaii", "Micronesia", "Melanesia", "Polynesia",
		"Fiji", "Samoa", "Solomon Islands", "Vanuatu", "New Caledonia"},
	"Caribbean Islands":    {"Caribbean", "Bahamas"},
	"Atlantic Islands":     {"Canary Islands", "Azores", "Bermuda"},
	"Indian Ocean Islands": {"Madagascar", "Seychelles"},
	"Malay Archipelago":    {"Philippines", "Borneo", "Sulawesi", "Java", "Sumatra", "New Guinea"},
}

var desertRegions = []namedRegion{
	{"Sahara", box{15, 35, -17, 35}},
	{"Arabian", box{12, 32, 35, 60}},
	{"Gobi", box{38, 46, 90, 115}},
	{"Australian Interior", box{-30, -18, 120, 145}},
	{"Atacama", box{-30, -18, -72, -68}},
	{"Patagonian", box{-52, -40, -72, -65}},
	{"Namib", box{-28, -15, 12, 17}},
	{"Kalahari", box{-28, -18, 17, 26}},
	{"Sonoran", box{27, 35, -116, -109}},
	{"Mojave", box{34, 37, -117, -114}},
	{"Chihuahuan", box{25, 33, -108, -103}},
	{"Great Basin", box{36, 42, -120, -111}},
}

var rainforestRegions = []box{
	{-18, 8, -78, -44},  // Amazon
	{-8, 6, 9, 31},      // Congo
	{-10, 20, 95, 140},  // Southeast Asia
	{-30, -5, -55, -35}, // Atlantic Forest
	{7, 20, -92, -77},   // Central America
	{0, 9, -79, -76},    // Choco
}

var taigaRegions = []box{
	{50, 68, -140, -55}, // Canadian boreal
	{58, 70, 5, 30},     // Scandinavia
	{50, 72, 30, 180},   // Russia and Siberia
}

var tundraRegions = []box{
	{66.5, 90, -180, 180}, // circumpolar Arctic
	{60, 83, -140, -60},   // Canadian Arctic
	{60, 84, -73, -11},    // Greenland
	{-90, -60, -180, 180}, // Antarctic
}

var savannaRegions = []box{
	{-25, 15, -18, 45},  // African savanna
	{-24, -5, -60, -41}, // Cerrado
	{2, 10, -74, -62},   // Llanos
	{-20, -10, 120, 150}, // northern Australia
}

var steppeRegions = []box{
	{40, 55, 20, 120},    // Eurasian steppe
	{30, 50, -110, -95},  // Great Plains
	{-40, -28, -65, -55}, // Pampas
	{-52, -38, -72, -65}, // Patagonian steppe
}

var temperateForestRegions = []box{
	{30, 48, -95, -65},  // eastern North America
	{42, 60, -10, 25},   // western Europe
	{25, 45, 100, 145},  // East Asia
	{-55, -38, -76, -70}, // southern Chile
	{-48, -34, 166, 179}, // New Zealand
	{-42, -30, 140, 154}, // southeast Australia
}

var mediterraneanRegions = []box{
	{30, 45, -10, 40},    // Mediterranean basin
	{32, 42, -125, -117}, // California chaparral
	{-40, -30, -75, -70}, // Chilean matorral
	{-35, -31, 17, 26},   // Cape fynbos
	{-38, -30, 114, 122}, // southwest Australia
}

var mountainRanges = []namedRegion{
	{"Himalayas", box{26, 36, 73, 95}},
	{"Tibetan Plateau", box{27, 40, 78, 103}},
	{"Andes", box{-55, 10, -80, -65}},
	{"Rocky Mountains", box{35, 60, -125, -105}},
	{"Alps", box{43, 48, 5, 17}},
	{"Pyrenees", box{42, 43.5, -2, 3}},
	{"Carpathians", box{44, 50, 17, 27}},
	{"Caucasus", box{41, 44, 39, 50}},
	{"Atlas", box{30, 36, -10, 10}},
	{"East African Mountains", box{-5, 5, 29, 40}},
	{"Southern Alps", box{-46, -42, 168, 172}},
	{"Japanese Alps", box{35, 37, 137, 139}},
	{"New Guinea Highlands", box{-7, -4, 138, 148}},
	{"Sierra Nevada", box{35, 40, -120, -117}},
	{"Cascade Range", box{40, 50, -123, -120}},
	{"Appalachians", box{33, 47, -85, -75}},
	{"Alaska Range", box{61, 64, -154, -143}},
}

type realmBox struct {
	name string
	box  box
}

var realms = []realmBox{
	{"Nearctic", box{15, 90, -170, -50}},
	{"Neotropical", box{-60, 30, -120, -30}},
	{"Palearctic", box{20, 90, -30, 180}},
	{"Afrotropic", box{-40, 20, -20, 55}},
	{"Indomalayan", box{-15, 35, 60, 150}},
	{"Australasian", box{-50, 0, 110, 180}},
}

// Classification is the geographic profile of a coordinate.
type Classification struct {
	Region        string `json:"region,omitempty"`
	RegionGroup   string `json:"regionGroup,omitempty"`
	IsIsland      bool   `json:"isIsland"`
	Realm         string `json:"realm"`
	LatitudeBand  string `json:"latitudeBand"`
	ElevationBand string `json:"elevationBand"`
	HighAltitude  bool   `json:"highAltitude"`
	AboveTreeline bool   `json:"aboveTreeline"`
	Biome         string `json:"biome"`
	MountainRange string `json:"mountainRange,omitempty"`
	Environment   string `json:"environment"`
}

// Classify profiles a coordinate pair. Pass a NaN elevation when none is
// known; the elevation-derived fields then stay at their unknown values.
func Classify(lat, lon, elevation float64) Classification {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return Classification{
			Realm:         "Unknown",
			ElevationBand: "unknown",
			Biome:         "unknown",
			Environment:   "unknown",
		}
	}

	c := Classification{
		Realm:         Realm(lat, lon),
		LatitudeBand:  LatitudeBand(lat),
		ElevationBand: ElevationBand(elevation),
		HighAltitude:  HighAltitude(elevation),
		AboveTreeline: AboveTreeline(elevation, lat),
		Biome:         Biome(lat, lon, elevation),
		MountainRange: MountainRange(lat, lon),
	}

	for _, region := range namedRegions {
		if region.box.contains(lat, lon) {
			c.Region = region.name
			for group, members := range islandGroups {
				for _, member := range members {
					if member == region.name {
						c.RegionGroup = group
					}
				}
			}
			break
		}
	}
	c.IsIsland = isIsland(lat, lon, c.RegionGroup)

	switch {
	case c.IsIsland:
		c.Environment = "marine_coastal"
	case c.AboveTreeline:
		c.Environment = "alpine"
	case c.Biome == "desert" || c.Biome == "tundra":
		c.Environment = c.Biome
	case c.LatitudeBand == "equatorial" || c.LatitudeBand == "tropical":
		c.Environment = "terrestrial_tropical"
	default:
		c.Environment = "terrestrial"
	}
	return c
}

// ClassifyPoint profiles an orb point (lon/lat order), such as an
// expedition centroid.
func ClassifyPoint(p orb.Point, elevation float64) Classification {
	return Classify(p.Lat(), p.Lon(), elevation)
}

// LatitudeBand names the climate band a latitude falls in.
func LatitudeBand(lat float64) string {
	abs := math.Abs(lat)
	switch {
	case abs < 10:
		return "equatorial"
	case abs < 23.5:
		return "tropical"
	case abs < 35:
		return "subtropical"
	case abs < 50:
		return "temperate"
	case abs < 66.5:
		if lat > 0 {
			return "subarctic"
		}
		return "subantarctic"
	}
	return "polar"
}

// ElevationBand names the ecological elevation zone for an elevation in
// meters. NaN means the elevation is unknown.
func ElevationBand(elevation float64) string {
	switch {
	case math.IsNaN(elevation):
		return "unknown"
	case elevation < 0:
		return "below_sea_level"
	case elevation < 50:
		return "coastal"
	case elevation < 500:
		return "lowland"
	case elevation < 1500:
		return "submontane"
	case elevation < 2500:
		return "montane"
	case elevation < 3500:
		return "upper_montane"
	case elevation < 4500:
		return "alpine"
	}
	return "nival"
}

// TreelineElevation estimates the treeline for a latitude, from roughly
// 4000 m near the equator down to sea level in the Arctic.
func TreelineElevation(lat float64) float64 {
	abs := math.Abs(lat)
	switch {
	case abs < 10:
		return 4000
	case abs < 23.5:
		return 3800
	case abs < 35:
		return 3200
	case abs < 45:
		return 2500
	case abs < 55:
		return 1800
	case abs < 66.5:
		return 1000
	}
	return 0
}

// HighAltitude reports whether an elevation is at or above 2500 m.
func HighAltitude(elevation float64) bool {
	return !math.IsNaN(elevation) && elevation >= 2500
}

// AboveTreeline reports whether an elevation clears the latitude-adjusted
// treeline. With an unknown latitude the conservative tropical treeline
// applies.
func AboveTreeline(elevation, lat float64) bool {
	if math.IsNaN(elevation) {
		return false
	}
	if math.IsNaN(lat) {
		return elevation >= 4000
	}
	return elevation >= TreelineElevation(lat)
}

// Realm resolves the biogeographic realm for a coordinate. The Oceanian
// and Antarctic realms are handled before the box lookup since their
// extents cut across the others.
func Realm(lat, lon float64) string {
	if lat >= -30 && lat <= 30 && (lon >= 150 || lon <= -100) {
		return "Oceanian"
	}
	if lat < -60 {
		return "Antarctic"
	}
	for _, r := range realms {
		if r.box.contains(lat, lon) {
			return r.name
		}
	}
	return "Unknown"
}

// Biome estimates the biome for a coordinate, using elevation when known
// to pick out alpine and montane zones first.
func Biome(lat, lon, elevation float64) string {
	if !math.IsNaN(elevation) {
		if elevation >= 4000 {
			return "alpine"
		}
		if elevation >= 2500 && MountainRange(lat, lon) != "" {
			return "montane"
		}
	}

	abs := math.Abs(lat)
	if abs >= 66.5 {
		return "tundra"
	}
	for _, b := range tundraRegions {
		if b.contains(lat, lon) {
			return "tundra"
		}
	}
	if abs >= 50 {
		for _, b := range taigaRegions {
			if b.contains(lat, lon) {
				return "taiga"
			}
		}
	}
	for _, r := range desertRegions {
		if r.box.contains(lat, lon) {
			return "desert"
		}
	}
	for _, b := range rainforestRegions {
		if b.contains(lat, lon) {
			return "tropical_rainforest"
		}
	}
	for _, b := range savannaRegions {
		if b.contains(lat, lon) {
			return "tropical_savanna"
		}
	}
	for _, b := range mediterraneanRegions {
		if b.contains(lat, lon) {
			return "mediterranean"
		}
	}
	for _, b := range steppeRegions {
		if b.contains(lat, lon) {
			return "temperate_grassland"
		}
	}
	for _, b := range temperateForestRegions {
		if b.contains(lat, lon) {
			return "temperate_forest"
		}
	}

	switch {
	case abs < 23.5:
		return "tropical"
	case abs < 35:
		return "subtropical"
	case abs < 50:
		return "temperate"
	case abs < 66.5:
		return "boreal"
	}
	return "polar"
}

// MountainRange names the known mountain range containing the coordinate,
// or an empty string.
func MountainRange(lat, lon float64) string {
	for _, r := range mountainRanges {
		if r.box.contains(lat, lon) {
			return r.name
		}
	}
	return ""
}

func isIsland(lat, lon float64, regionGroup string) bool {
	if regionGroup != "" {
		return true
	}
	// Open-Pacific and Caribbean coordinates default to island localities.
	if lat >= -30 && lat <= 30 && (lon > 150 || lon < -120) {
		return true
	}
	if lat >= 10 && lat <= 27 && lon >= -85 && lon <= -60 {
		return true
	}
	return false
}
