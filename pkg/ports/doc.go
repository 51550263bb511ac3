/*
Package ports defines the driven ports (interfaces) of the headless chat SDK.

These interfaces decouple the conversation orchestrator from concrete transports
and storage backends, so the same core works against the default chat API, an
injected bot, a live-agent integration, or a fake in tests.

# Key Interfaces

  - HTTPClient: request/response bot client with optional token streaming.
  - EventClient: event-driven client whose replies arrive asynchronously.
  - KeyValueStore: byte storage used to persist conversation state and credentials.
  - AnalyticsClient: receives fully merged analytics payloads.
  - DistributedLocker: provides distributed locking for keys shared across processes.
*/
package ports
