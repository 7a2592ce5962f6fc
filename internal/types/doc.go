/*
Package types defines the data model shared by the execution engine.

# Overview

The types package provides the definitions consumed by every other
package:
  - RequestDefinition: declarative request (method, URL template,
    ordered headers, body and auth variants, expected status, timeout)
  - Environment: named variable bindings plus base URL
  - ResolvedRequest: the frozen per-execution snapshot built by the
    pipeline and handed to the dispatcher
  - ExecutionResult / Failure / AssertionOutcome: the immutable outcome
    of one pipeline invocation
  - HistoryEntry: result plus resolved snapshot, for time-travel
  - ChainRule: response-to-variable extraction binding

# Variants

Body, Auth and TransportKind model closed tagged variants: a Kind
field selects which of the remaining fields are meaningful. Adding a
transport or body shape adds a variant constant and a switch arm, not
a subclass.

# Immutability

RequestDefinition is never mutated during execution; the pipeline
produces a ResolvedRequest copy. ExecutionResult and HistoryEntry are
immutable once produced and safe for concurrent reads.
*/
package types
