/*
Package cli provides a CLI implementation of a client for the
farm scheduler API. The current implementation is tethered to the
CLI processing, and the client interface is not independent.
The CLI client resolves the scheduler address via the addr file
(see scheduler/client locate.go).
*/
package cli
