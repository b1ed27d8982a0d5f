// Package telemetry defines the normalized activity record produced by the
// ingestion layer and consumed by session reconstruction.
//
// A Record is pure data. The only behavior here is enum parsing and the
// ordering key:
//
//	(CreationIndex, MetricsID, Timestamp) ascending
//
// CreationIndex is the authoritative client-side order; timestamps can be
// imprecise and only break ties.
package telemetry
