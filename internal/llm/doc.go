// Package llm provides the model backend clients used by the review
// pipeline. Backends are opaque text-completion endpoints: a prompt pair
// goes in, raw text comes out, and failures carry enough type information
// for the deployment router to classify them.
package llm
