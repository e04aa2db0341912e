// Package testutil contains helpers shared by tests: a fluent builder for
// capability events and scripted capabilities whose behavior is fixed per
// test. They are not intended for production usage.
package testutil
