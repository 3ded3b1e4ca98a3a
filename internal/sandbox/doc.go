/*
Package sandbox runs untrusted JavaScript in goja and routes every console
call it makes into a console.Session.

# Overview

Each Runtime owns one goja VM with an isolated global scope:

  - require, process, module and exports are removed
  - timers are accepted and ignored
  - a watchdog interrupts the VM on timeout or context cancellation
  - document is exposed only when markup is supplied with the run

Script values handed to console methods are converted before they reach the
session. Functions become serialize.Invocable values, Map instances become
*serialize.OrderedMap, Error objects become *stacktrace.ErrorValue carrying
the engine's own stack, and element proxies become *html.Node. Visited
objects are tracked per call so cycles survive the conversion.

Synthesized traces (console.trace, failed assertions) come from the VM call
stack, not the Go stack, so frames point at script locations.

# Usage

	pool, err := sandbox.NewPool(ctx, sandbox.DefaultConfig(), 4,
		sandbox.WithCache(cache), sandbox.WithLogger(logger))

	buf := transport.NewBuffer()
	result, err := pool.Execute(ctx, `console.log("hi")`, nil, buf)

Programs are compiled once and shared through ProgramCache.
*/
package sandbox
