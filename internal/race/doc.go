// Package race implements the synchronized unlock race: four workers that
// wake just before midnight Beijing time, fire staggered apply requests, and
// retry inside a short window until one of them is approved.
//
// The package is deliberately free of real time and real HTTP. Workers read
// the clock through clock.Clock and talk to the service through the API
// interface, so the whole state machine runs deterministically under test.
package race
