// Package terminal implements the interactive command-line mode for the
// hearth agent.
//
// Users converse with the agent one line at a time: non-empty lines become
// turns, empty lines re-prompt, and "exit" (case-insensitive; /exit and
// /quit also work) ends the session with a success status. Errors during a
// turn are printed and the prompt returns, so a failed turn never takes the
// process down.
//
// In prompt mode every tool call asks for confirmation before executing; in
// auto mode tools run unattended. The configured verbosity level decides
// whether tool names, arguments and results are echoed to the terminal.
package terminal
