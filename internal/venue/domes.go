package venue

// knownDomes lists fixed and retractable roof venues that ESPN often reports
// without an indoor flag. Names are matched after normalization.
var knownDomes = []string{
	"Caesars Superdome",
	"Ford Field",
	"U.S. Bank Stadium",
	"Mercedes-Benz Stadium",
	"Allegiant Stadium",
	"SoFi Stadium",
	"AT&T Stadium",
	"NRG Stadium",
	"Lucas Oil Stadium",
	"State Farm Stadium",
	"Alamodome",
	"JMA Wireless Dome",
	"Carrier Dome",
	"Kibbie Dome",
	"Holt Arena",
	"FargoDome",
	"UNI-Dome",
	"Walkup Skydome",
	"Tropicana Field",
	"Rogers Centre",
	"Chase Field",
	"Daikin Park",
	"Minute Maid Park",
	"T-Mobile Park",
	"American Family Field",
	"loanDepot park",
	"Globe Life Field",
}
