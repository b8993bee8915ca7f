// Package indicator computes overlay series from ordered bar sequences.
//
// Every function is a pure function of (bars, params): no shared state, no
// dependency between indicators, identical input always produces identical
// output. Inputs are assumed sorted ascending by time; every emitted point's
// time exists in the input bars.
package indicator
