/*
Package runner executes submitted scripts on a sandbox executor and feeds
their console output through the capture pipeline.

Each run gets its own sink chain:

	monitoring.Sink -> transport.Throttle -> transport.Encoding -> caller sink

so the caller only ever sees events whose data is already a bounded,
wire-safe envelope. Errors and failed assertions bypass the throttle.
*/
package runner
