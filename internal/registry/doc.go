// Package registry reads schema definitions from a Confluent-compatible
// schema registry or from a local directory of schema files, and filters
// subjects with include/exclude glob patterns.
package registry
