// Package schema holds the normalized, format-independent model that the
// orchestrator works on: documentable elements, their catalog per schema,
// and the per-subject job record.
package schema
