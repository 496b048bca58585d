// Package router selects which retrieval specialists answer a query.
//
// Each specialist's description is scored against the query by a pluggable
// Scorer, multiplied by the profile's importance weight, and every
// specialist whose weighted score exceeds the threshold is selected, best
// first, up to MaxFanout. Equal scores keep declaration order. When nothing
// clears the threshold the plan asks for the fallback agent.
package router
