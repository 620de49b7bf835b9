/*
Package ngram builds word n-gram transition tables from a token sequence and
walks them to produce new text one token at a time.

A Table of order n maps every context of n-1 consecutive tokens to the
multiset of tokens observed right after it. A Model collects independently
built tables for a contiguous range of orders, which the Generator uses for
progressive generation: it starts from a single seed word on the order-2
table and climbs to higher orders as material runs out, falling back to a
shorter context when a lookup misses.

The package performs no I/O and keeps no global state. Tables are immutable
once built, and all randomness flows through the Generator's source so tests
can inject a seeded one.
*/
package ngram
