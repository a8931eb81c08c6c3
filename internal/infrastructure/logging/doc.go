// Package logging provides structured logging for Arena Core.
//
// Built on log/slog with configuration-driven level and format selection.
// Every logger carries the service name and version as default attributes;
// subsystems derive child loggers with With("component", ...).
package logging
