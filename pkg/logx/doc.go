// Package logx wraps zerolog behind a small structured-logging API.
//
// Components receive a Logger (usually derived via With) and log through
// Field helpers. The Service owns the sinks (console, file) and can swap
// them at runtime via Apply() without invalidating existing Loggers.
package logx
