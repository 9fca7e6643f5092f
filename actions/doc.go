// Package actions is the entry point for AI-triggered function calls. A
// Dispatcher normalizes the call parameters, runs the registered handler and
// always answers with a result map, never an error.
package actions
