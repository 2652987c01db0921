// Package events provides the outcome broadcast used to push processed results to
// interested listeners in near-real time.
//
// The primary components are:
// - Outcome: the JSON payload published for every processed item
// - Publisher: serializes outcomes onto a named broadcast channel
// - Broadcaster: transport interface (Redis pub/sub, or InMemoryBroadcaster in-process)
// - OutcomeHandler: interface for in-process listeners
package events
