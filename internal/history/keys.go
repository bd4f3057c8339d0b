package history

import "fmt"

// Redis key helpers. Every key and channel is namespaced so several
// marketplaces can share one Redis server.
//
// Key pattern: intelmarket:{namespace}:history:{agent_id}
// Channel pattern: intelmarket:{namespace}:transaction_events

// AgentKey returns the list holding agentID's records, newest last.
func AgentKey(namespace, agentID string) string {
	return fmt.Sprintf("intelmarket:%s:history:%s", namespace, agentID)
}

// EventsChannel returns the Pub/Sub channel announcing recorded transactions.
func EventsChannel(namespace string) string {
	return fmt.Sprintf("intelmarket:%s:transaction_events", namespace)
}
