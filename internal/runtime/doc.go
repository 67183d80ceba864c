/*
Package runtime implements the site load state machine.

A Controller owns one LoadState and drives it PRELOAD → WAIT → READY through
the pure transition function Next. The Loader fetches site definitions,
deduplicating concurrent fetches, and resolves the variant with the priority
requested name → session affinity → weighted random draw.

The fetch races a timer. Whichever side wins the outcome flag decides the
path: a won fetch resolves normally, a lost one is discarded and the fallback
site is used. Both paths end in the same sequence: record exposure, move to
READY, broadcast.
*/
package runtime
