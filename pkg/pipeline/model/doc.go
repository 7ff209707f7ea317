// Package model holds the data structures shared between the pipeline executor and its options: the description of
// a step handed to hooks, and the hook interface itself.
package model
