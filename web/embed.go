// Package web holds files served as-is by the HTTP server.
package web

import _ "embed"

// SampleCSVName is the download name of SampleCSV.
const SampleCSVName = "sample_expenses.csv"

// SampleCSV is a six month expense export accepted by the upload endpoint.
//
//go:embed sample_expenses.csv
var SampleCSV []byte
