// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package engine implements the execution entry points (C9) that sit
// above C3-C6: execute, process_plan, execute_with_transaction,
// evaluate, import_stream, and export, per spec.md §4.9. The surface
// SQL grammar and its evaluator are an explicit non-goal of spec.md §1
// ("treated as a black box that calls the catalog/transaction APIs
// defined here"); this package owns the black-box seam (Statement,
// Parser) and everything around it: transaction lifecycle per
// statement, timeout/cancellation, error translation, the streaming
// import buffer, and the deterministic export writer.
package engine
