// Package persist commits validated analysis to every table that serves it.
//
// The submission row is written first and is the only step whose failure is
// returned. The content asset, published channel projections, and quarantine
// entry follow; their failures are logged and listed in the Report without
// undoing the submission update. Free-form tags are mapped through the tag
// vocabulary before anything is stored.
package persist
