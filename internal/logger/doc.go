// Package logger wraps zap for the packaging tools:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and adjustment,
//   - leveled convenience functions (InfoKV, WarnKV and friends).
//
// Services receive a context and pull the logger from it, so every message
// carries the scope (command name, package name) it was produced in.
package logger
