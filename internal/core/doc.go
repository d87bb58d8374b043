// Package core provides the business logic for spreadsheet imports.
//
// The package contains the whole import pipeline independent of any UI or
// transport layer. It can be used by web handlers, CLI tools, or tests
// without modification.
//
// # Pipeline
//
// An import moves through these stages:
//
//  1. [ReadSpreadsheet] decodes a CSV or XLSX file into header-keyed rows
//  2. [AutoMapColumns] proposes a [ColumnMapping] from headers to schema fields
//  3. [ValidateRow] projects, checks and transforms each row into an [ImportEntity]
//  4. [DetectDuplicates] marks rows repeating an earlier row's identifying value
//  5. [BuildPreview] aggregates the rows for review and selection
//  6. [ExecuteImport] submits the selected rows to a [BulkCreator] and builds an [ImportSummary]
//
// [Session] wraps these stages in a state machine
// (upload, analyzing, mapping, preview, summary) and [Service] keeps the
// live sessions of a process.
//
// # Schema Registry
//
// Schemas are registered at init time using [Register] and [Define]:
//
//	core.Register(core.Define(
//	    core.SchemaInfo{Key: "contacts", Group: "CRM", Label: "Contacts"},
//	    contactSchema,
//	    newContactCreator,
//	))
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE006: File errors (size, format, encoding, empty)
//   - MAP001-MAP005: Column mapping and saved mapping errors
//   - VAL001-VAL003: Value errors
//   - IMP001-IMP006: Import execution errors
//   - SES001-SES004: Session errors
//   - DB001-DB008: Database errors
package core
