// Package logging configures structured JSON logging for amankb.
//
// Workers and the admin server log to ~/.amankb/logs/server.log with
// size-based rotation, optionally teed to stderr. Event names are
// snake_case (parse_job_started, text_reindex_complete) with typed
// attributes, so the file can be filtered with jq.
package logging
