// Package secrets redacts credentials from schema content before it leaves
// the process. Default values and existing descriptions are scrubbed before
// they are placed in a language model prompt.
package secrets
