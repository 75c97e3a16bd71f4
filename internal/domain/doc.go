// Package domain models report queries and rows of the Atlas Digital das
// Pastagens Brasileiras, published by LAPIG/UFG.
//
// # Data Source
//
// The atlas exposes a single CSV download endpoint:
//
//	https://pastagem.org/atlas/service/map/downloadCSV?file=<id>&filter=<expr>&region=<expr>
//
// The "file" parameter selects one of four report layers. See [ReportKind]
// for the fixed mapping from kind to provider identifier.
//
// # Filter Expressions
//
// Filters are SQL-like predicates evaluated by the provider:
//
//	year=2019                          year equality
//	cd_geocmu='3302025'                IBGE municipality code equality (quoted)
//	year=2019 AND cd_geocmu='3302025'  conjunction
//
// The degradation and intensification layers accept only "filter". The
// pasture area and livestock layers are keyed by year and take the
// conjunction in "region" plus the municipality predicate in "filter".
//
// # Degradation Classes
//
// The degradation layer reports pasture area per class:
//
//	1 Not Degraded | 2 Light | 3 Moderate | 4 Severe
//
// Classes are carried through as numbers; [DegradationClass] gives labels.
//
// # Type Coercion
//
// The provider returns every column as text. [ConvertCSV] turns each cell
// into a [Value] that is either a number or the original text. The token
// "NaN" and infinities stay text so every record is JSON-encodable.
package domain
