package payment

// Package is a purchasable credit bundle with per-platform KRW pricing.
// Native prices carry the store commission offset.
type Package struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Credits int64              `json:"credits"`
	Bonus   int64              `json:"bonus"`
	Prices  map[Platform]int64 `json:"prices"`
}

var packages = map[string]Package{
	"pkg_10":   {ID: "pkg_10", Name: "10 credits", Credits: 10, Bonus: 0, Prices: map[Platform]int64{PlatformWeb: 1000, PlatformAndroid: 1200, PlatformIOS: 1400}},
	"pkg_50":   {ID: "pkg_50", Name: "50 credits", Credits: 50, Bonus: 0, Prices: map[Platform]int64{PlatformWeb: 5000, PlatformAndroid: 5900, PlatformIOS: 6900}},
	"pkg_100":  {ID: "pkg_100", Name: "100 credits", Credits: 100, Bonus: 5, Prices: map[Platform]int64{PlatformWeb: 10000, PlatformAndroid: 11900, PlatformIOS: 13900}},
	"pkg_500":  {ID: "pkg_500", Name: "500 credits", Credits: 500, Bonus: 50, Prices: map[Platform]int64{PlatformWeb: 50000, PlatformAndroid: 59000, PlatformIOS: 69000}},
	"pkg_1000": {ID: "pkg_1000", Name: "1,000 credits", Credits: 1000, Bonus: 150, Prices: map[Platform]int64{PlatformWeb: 100000, PlatformAndroid: 119000, PlatformIOS: 139000}},
	"pkg_5000": {ID: "pkg_5000", Name: "5,000 credits", Credits: 5000, Bonus: 1000, Prices: map[Platform]int64{PlatformWeb: 500000, PlatformAndroid: 590000, PlatformIOS: 690000}},
}

// LookupPackage resolves a package id.
func LookupPackage(id string) (Package, bool) {
	p, ok := packages[id]
	return p, ok
}

// splitVAT derives the supply amount and VAT from a gross price.
// supply = price * 10/11 truncated, vat = remainder.
func splitVAT(priceKRW int64) (supply, vat int64) {
	supply = priceKRW * 10 / 11
	return supply, priceKRW - supply
}
