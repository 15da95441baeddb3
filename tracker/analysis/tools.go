package analysis

import "strings"

// biggerIsBetter maps each benchmark tool to the direction of its values
var biggerIsBetter = map[string]bool{
	"customBiggerIsBetter":  true,
	"benchmarkjs":           true,
	"pytest":                true,
	"jmh":                   true,
	"customSmallerIsBetter": false,
	"go":                    false,
	"cargo":                 false,
	"googlecpp":             false,
	"catch2":                false,
	"benchmarkdotnet":       false,
	"julia":                 false,
	"benchmarkluau":         false,
	"jsperformanceentry":    false,
}

// KnownTool reports whether tool is in the registry
func KnownTool(tool string) bool {
	_, ok := biggerIsBetter[tool]
	return ok
}

// BiggerIsBetter reports whether larger values of a bench are improvements.
// Throughput units win over the tool default.
func BiggerIsBetter(tool, unit string) bool {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "ops/sec" || strings.HasSuffix(u, "/s") || strings.HasSuffix(u, "/sec") {
		return true
	}
	return biggerIsBetter[tool]
}
