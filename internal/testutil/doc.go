// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing messages, assistant turns and checkpoints.
// They are not intended for production usage.
package testutil
