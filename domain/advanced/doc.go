// Package advanced layers composite (conditional) order families on
// top of the primitive order book: one-cancels-other, one-triggers-
// other, fill-or-kill, bracket, trailing stop, and trailing bracket.
//
// The Controller owns every composite group and drives each group's
// state machine from book events. It never touches book internals;
// all follow-up work (sibling cancels, dependent submissions, trailing
// amendments) goes through the book's public contract, deferred on the
// dispatcher's command queue so it runs only after the operation that
// produced the triggering event has unwound. Sibling references are
// id-based lookups into the controller's tables, never direct pointers,
// so cyclic group wiring carries no ownership cycles.
package advanced
