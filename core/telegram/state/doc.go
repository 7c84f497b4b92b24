// Package state keeps per-chat conversation state in process memory and
// serialises the handling of updates that belong to the same chat.
// Nothing here survives a restart.
package state
