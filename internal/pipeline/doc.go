// Package pipeline wires the stages of one mapping run: shard streams are
// resolved read by read, voted onto templates, spooled, assembled per
// template and reported.
package pipeline
