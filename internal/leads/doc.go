// Package leads defines the data model shared by the enrichment pipeline:
// domains, provider candidates, filter criteria, accepted lead records, money
// and the error taxonomy used across providers, the fetcher and the agent.
package leads
