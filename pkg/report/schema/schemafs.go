// Package schema provides the embedded JSON schema of the serialized report
// summary document.
package schema

import "embed"

// SummarySchemaFS contains the embedded report summary JSON schema.
//
//go:embed report-summary.json
var SummarySchemaFS embed.FS
