/*
Package monitoring collects service metrics.

Prometheus series cover HTTP requests, script runs by outcome, console
events by command, items omitted by the serialization limit, undelivered
events and stream connections. RunStats keeps a window of recent run
durations and summarises it with gonum/stat for the /stats endpoint.

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	sink := monitoring.NewSink(metrics, buffer)
*/
package monitoring
