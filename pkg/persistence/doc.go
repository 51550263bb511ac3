/*
Package persistence saves and restores conversation state and handoff credentials.

Two independent policies can be enabled: a durable one (24 hour freshness
window measured from the last message) and a session-scope one (no freshness
check). Entries are keyed by namespace, hostname and bot id:

	headless_chat_state__<hostname>__<botId>
	headless_chat_credentials__<hostname>__<botId>

Persistence never fails the conversation: read and write errors are logged
and the SDK keeps working in memory.
*/
package persistence
