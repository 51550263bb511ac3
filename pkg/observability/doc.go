/*
Package observability turns conversation lifecycle hooks into metrics and logs.

Both helpers return a domain.LifecycleHooks value; combine them with
LifecycleHooks.Merge and pass the result to headless.WithLifecycleHooks.

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := metrics.Hooks().Merge(observability.LoggingHooks(logger))
*/
package observability
