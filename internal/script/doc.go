// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package script turns the text of a workflow script into an immutable Script
// value.
//
// A script is an HCL document with a top-level `adapter` attribute, an optional
// `input_config` attribute, any number of `variable` blocks and one or more
// `step` blocks. The parser performs structural checks only: unknown
// attributes and blocks, duplicate names, malformed literals and misplaced
// `each` references are reported as a ParseError carrying the offending line.
// Step expressions are kept unevaluated so that later stages can resolve them
// against the variable bindings of a particular run.
package script
