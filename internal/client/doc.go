// Package client submits scripts to a remote run-js server over HTTP. It
// is used by the runjs command in remote mode.
package client
