package country

import "strings"

// BoundingBox is [minLon, minLat, maxLon, maxLat] in degrees.
type BoundingBox [4]float64

type boxEntry struct {
	name string
	box  BoundingBox
}

// Rough national extents, mainland only.
var boundingBoxes = map[string]boxEntry{
	"united states":  {"United States", BoundingBox{-124.8, 24.5, -66.9, 49.4}},
	"china":          {"China", BoundingBox{73.5, 18.2, 134.8, 53.6}},
	"india":          {"India", BoundingBox{68.1, 6.5, 97.4, 35.5}},
	"brazil":         {"Brazil", BoundingBox{-74.0, -33.8, -34.8, 5.3}},
	"russia":         {"Russia", BoundingBox{27.3, 41.2, 180.0, 81.9}},
	"argentina":      {"Argentina", BoundingBox{-73.6, -55.1, -53.6, -21.8}},
	"indonesia":      {"Indonesia", BoundingBox{95.0, -11.0, 141.0, 6.1}},
	"nigeria":        {"Nigeria", BoundingBox{2.7, 4.3, 14.7, 13.9}},
	"kenya":          {"Kenya", BoundingBox{33.9, -4.7, 41.9, 5.0}},
	"ethiopia":       {"Ethiopia", BoundingBox{33.0, 3.4, 48.0, 14.9}},
	"mexico":         {"Mexico", BoundingBox{-117.1, 14.5, -86.7, 32.7}},
	"canada":         {"Canada", BoundingBox{-141.0, 41.7, -52.6, 83.1}},
	"australia":      {"Australia", BoundingBox{113.3, -43.6, 153.6, -10.7}},
	"france":         {"France", BoundingBox{-5.1, 42.3, 8.2, 51.1}},
	"germany":        {"Germany", BoundingBox{5.9, 47.3, 15.0, 55.1}},
	"ukraine":        {"Ukraine", BoundingBox{22.1, 44.4, 40.2, 52.4}},
	"vietnam":        {"Vietnam", BoundingBox{102.1, 8.6, 109.5, 23.4}},
	"thailand":       {"Thailand", BoundingBox{97.3, 5.6, 105.6, 20.5}},
	"pakistan":       {"Pakistan", BoundingBox{60.9, 23.7, 77.8, 37.1}},
	"bangladesh":     {"Bangladesh", BoundingBox{88.0, 20.7, 92.7, 26.6}},
	"egypt":          {"Egypt", BoundingBox{24.7, 22.0, 36.9, 31.7}},
	"south africa":   {"South Africa", BoundingBox{16.5, -34.8, 32.9, -22.1}},
	"philippines":    {"Philippines", BoundingBox{116.9, 4.6, 126.6, 21.1}},
	"united kingdom": {"United Kingdom", BoundingBox{-8.2, 49.9, 1.8, 60.9}},
}

// MarketEntry is a market-provider country code plus the local currency.
type MarketEntry struct {
	Code     string
	Currency string
}

// Keys are lowercase full names and common abbreviations.
var marketCodes = map[string]MarketEntry{
	"united states":  {"united states", "USD"},
	"usa":            {"united states", "USD"},
	"us":             {"united states", "USD"},
	"china":          {"china", "CNY"},
	"prc":            {"china", "CNY"},
	"india":          {"india", "INR"},
	"brazil":         {"brazil", "BRL"},
	"russia":         {"russia", "RUB"},
	"argentina":      {"argentina", "ARS"},
	"indonesia":      {"indonesia", "IDR"},
	"nigeria":        {"nigeria", "NGN"},
	"kenya":          {"kenya", "KES"},
	"ethiopia":       {"ethiopia", "ETB"},
	"mexico":         {"mexico", "MXN"},
	"canada":         {"canada", "CAD"},
	"australia":      {"australia", "AUD"},
	"france":         {"france", "EUR"},
	"germany":        {"germany", "EUR"},
	"ukraine":        {"ukraine", "UAH"},
	"vietnam":        {"vietnam", "VND"},
	"viet nam":       {"vietnam", "VND"},
	"thailand":       {"thailand", "THB"},
	"pakistan":       {"pakistan", "PKR"},
	"bangladesh":     {"bangladesh", "BDT"},
	"egypt":          {"egypt", "EGP"},
	"south africa":   {"south africa", "ZAR"},
	"rsa":            {"south africa", "ZAR"},
	"philippines":    {"philippines", "PHP"},
	"united kingdom": {"united kingdom", "GBP"},
	"uk":             {"united kingdom", "GBP"},
	"great britain":  {"united kingdom", "GBP"},
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LookupBoundingBox returns the static bounding box for a country, matched
// case-insensitively, and the canonical country name it belongs to.
func LookupBoundingBox(name string) (BoundingBox, string, bool) {
	e, ok := boundingBoxes[normalize(name)]
	if !ok {
		return BoundingBox{}, "", false
	}
	return e.box, e.name, true
}

// LookupMarket returns the static market entry for a name or abbreviation.
func LookupMarket(name string) (MarketEntry, bool) {
	e, ok := marketCodes[normalize(name)]
	return e, ok
}

// Keyed by ISO 3166 alpha-3 code; values are ISO 4217 currency codes.
var currencies = map[string]string{
	"AFG": "AFN", "AGO": "AOA", "ARG": "ARS", "AUS": "AUD", "AUT": "EUR",
	"BEL": "EUR", "BEN": "XOF", "BFA": "XOF", "BGD": "BDT", "BGR": "BGN",
	"BOL": "BOB", "BRA": "BRL", "BWA": "BWP", "CAN": "CAD", "CHE": "CHF",
	"CHL": "CLP", "CHN": "CNY", "CIV": "XOF", "CMR": "XAF", "COD": "CDF",
	"COL": "COP", "CRI": "CRC", "CZE": "CZK", "DEU": "EUR", "DNK": "DKK",
	"DOM": "DOP", "DZA": "DZD", "ECU": "USD", "EGY": "EGP", "ESP": "EUR",
	"ETH": "ETB", "FIN": "EUR", "FRA": "EUR", "GBR": "GBP", "GHA": "GHS",
	"GRC": "EUR", "GTM": "GTQ", "HND": "HNL", "HUN": "HUF", "IDN": "IDR",
	"IND": "INR", "IRL": "EUR", "IRN": "IRR", "IRQ": "IQD", "ISR": "ILS",
	"ITA": "EUR", "JPN": "JPY", "KAZ": "KZT", "KEN": "KES", "KHM": "KHR",
	"KOR": "KRW", "LAO": "LAK", "LKA": "LKR", "MAR": "MAD", "MDG": "MGA",
	"MEX": "MXN", "MLI": "XOF", "MMR": "MMK", "MOZ": "MZN", "MWI": "MWK",
	"MYS": "MYR", "NER": "XOF", "NGA": "NGN", "NIC": "NIO", "NLD": "EUR",
	"NOR": "NOK", "NPL": "NPR", "NZL": "NZD", "PAK": "PKR", "PER": "PEN",
	"PHL": "PHP", "POL": "PLN", "PRT": "EUR", "PRY": "PYG", "ROU": "RON",
	"RUS": "RUB", "RWA": "RWF", "SAU": "SAR", "SDN": "SDG", "SEN": "XOF",
	"SWE": "SEK", "SYR": "SYP", "TCD": "XAF", "THA": "THB", "TUN": "TND",
	"TUR": "TRY", "TZA": "TZS", "UGA": "UGX", "UKR": "UAH", "URY": "UYU",
	"USA": "USD", "UZB": "UZS", "VEN": "VES", "VNM": "VND", "YEM": "YER",
	"ZAF": "ZAR", "ZMB": "ZMW", "ZWE": "ZWL",
}

// CurrencyForISO3 returns the currency for an ISO alpha-3 country code, or ""
// when the code is not in the table.
func CurrencyForISO3(iso3 string) string {
	return currencies[strings.ToUpper(strings.TrimSpace(iso3))]
}
