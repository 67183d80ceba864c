// Package selection turns raw variant weights into a probability distribution
// and draws a single weighted-random winner from it.
//
// Everything here is synchronous and free of side effects apart from the one
// random draw made by a Selector, so the state machine can call it from any
// goroutine.
package selection
