/*
Package observability turns gate lifecycle hooks into Prometheus metrics.

Every rejected path (invalid transition, stale context, denied append,
failed undo) has its own counter, so nothing fails without leaving a trace.
*/
package observability
