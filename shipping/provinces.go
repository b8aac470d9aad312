package shipping

import (
	"sort"
	"strings"
)

// Province identifiers are lower-case slugs of Iran's 31 provinces.
var provinceNames = map[string]string{
	"alborz":                     "Alborz",
	"ardabil":                    "Ardabil",
	"bushehr":                    "Bushehr",
	"chaharmahal-and-bakhtiari":  "Chaharmahal and Bakhtiari",
	"east-azerbaijan":            "East Azerbaijan",
	"fars":                       "Fars",
	"gilan":                      "Gilan",
	"golestan":                   "Golestan",
	"hamadan":                    "Hamadan",
	"hormozgan":                  "Hormozgan",
	"ilam":                       "Ilam",
	"isfahan":                    "Isfahan",
	"kerman":                     "Kerman",
	"kermanshah":                 "Kermanshah",
	"khuzestan":                  "Khuzestan",
	"kohgiluyeh-and-boyer-ahmad": "Kohgiluyeh and Boyer-Ahmad",
	"kurdistan":                  "Kurdistan",
	"lorestan":                   "Lorestan",
	"markazi":                    "Markazi",
	"mazandaran":                 "Mazandaran",
	"north-khorasan":             "North Khorasan",
	"qazvin":                     "Qazvin",
	"qom":                        "Qom",
	"razavi-khorasan":            "Razavi Khorasan",
	"semnan":                     "Semnan",
	"sistan-and-baluchestan":     "Sistan and Baluchestan",
	"south-khorasan":             "South Khorasan",
	"tehran":                     "Tehran",
	"west-azerbaijan":            "West Azerbaijan",
	"yazd":                       "Yazd",
	"zanjan":                     "Zanjan",
}

// borders lists each shared land border once.
var borders = [][2]string{
	{"tehran", "alborz"}, {"tehran", "qom"}, {"tehran", "markazi"}, {"tehran", "semnan"}, {"tehran", "mazandaran"},
	{"alborz", "qazvin"}, {"alborz", "mazandaran"}, {"alborz", "markazi"},
	{"qom", "markazi"}, {"qom", "isfahan"}, {"qom", "semnan"},
	{"markazi", "isfahan"}, {"markazi", "lorestan"}, {"markazi", "hamadan"}, {"markazi", "qazvin"},
	{"qazvin", "mazandaran"}, {"qazvin", "gilan"}, {"qazvin", "zanjan"}, {"qazvin", "hamadan"},
	{"semnan", "isfahan"}, {"semnan", "mazandaran"}, {"semnan", "golestan"}, {"semnan", "north-khorasan"},
	{"semnan", "razavi-khorasan"}, {"semnan", "south-khorasan"}, {"semnan", "yazd"},
	{"mazandaran", "gilan"}, {"mazandaran", "golestan"},
	{"gilan", "ardabil"}, {"gilan", "zanjan"},
	{"golestan", "north-khorasan"},
	{"ardabil", "east-azerbaijan"}, {"ardabil", "zanjan"},
	{"east-azerbaijan", "west-azerbaijan"}, {"east-azerbaijan", "zanjan"},
	{"west-azerbaijan", "zanjan"}, {"west-azerbaijan", "kurdistan"},
	{"zanjan", "hamadan"}, {"zanjan", "kurdistan"},
	{"kurdistan", "hamadan"}, {"kurdistan", "kermanshah"},
	{"kermanshah", "hamadan"}, {"kermanshah", "lorestan"}, {"kermanshah", "ilam"},
	{"hamadan", "lorestan"},
	{"lorestan", "isfahan"}, {"lorestan", "chaharmahal-and-bakhtiari"}, {"lorestan", "khuzestan"}, {"lorestan", "ilam"},
	{"ilam", "khuzestan"},
	{"khuzestan", "chaharmahal-and-bakhtiari"}, {"khuzestan", "kohgiluyeh-and-boyer-ahmad"}, {"khuzestan", "bushehr"},
	{"chaharmahal-and-bakhtiari", "isfahan"}, {"chaharmahal-and-bakhtiari", "kohgiluyeh-and-boyer-ahmad"},
	{"kohgiluyeh-and-boyer-ahmad", "bushehr"}, {"kohgiluyeh-and-boyer-ahmad", "fars"}, {"kohgiluyeh-and-boyer-ahmad", "isfahan"},
	{"isfahan", "fars"}, {"isfahan", "yazd"},
	{"fars", "bushehr"}, {"fars", "hormozgan"}, {"fars", "kerman"}, {"fars", "yazd"},
	{"bushehr", "hormozgan"},
	{"hormozgan", "kerman"}, {"hormozgan", "sistan-and-baluchestan"},
	{"kerman", "sistan-and-baluchestan"}, {"kerman", "south-khorasan"}, {"kerman", "yazd"},
	{"sistan-and-baluchestan", "south-khorasan"},
	{"south-khorasan", "yazd"}, {"south-khorasan", "razavi-khorasan"},
	{"razavi-khorasan", "north-khorasan"},
}

var adjacency = buildAdjacency()

func buildAdjacency() map[string]map[string]bool {
	adj := make(map[string]map[string]bool, len(provinceNames))
	for slug := range provinceNames {
		adj[slug] = make(map[string]bool)
	}
	for _, b := range borders {
		adj[b[0]][b[1]] = true
		adj[b[1]][b[0]] = true
	}
	return adj
}

// NormalizeProvince turns "East Azerbaijan" or "east_azerbaijan" into its slug.
func NormalizeProvince(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(slug)
}

// IsProvince reports whether name is a known province.
func IsProvince(name string) bool {
	_, ok := provinceNames[NormalizeProvince(name)]
	return ok
}

// Adjacent reports whether two provinces share a border.
func Adjacent(a, b string) bool {
	return adjacency[NormalizeProvince(a)][NormalizeProvince(b)]
}

// Province is a selectable destination.
type Province struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Provinces returns every province ordered by slug.
func Provinces() []Province {
	list := make([]Province, 0, len(provinceNames))
	for slug, name := range provinceNames {
		list = append(list, Province{Slug: slug, Name: name})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Slug < list[j].Slug })
	return list
}
