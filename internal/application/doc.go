// Package application provides application initialization and dependency wiring.
// It builds the message builder and SMTP sender from the resolved
// configuration and turns the outcome of a send or a connection test into a
// success flag, logging the reason for any failure. This keeps the main
// package focused on CLI parsing and orchestration.
package application
