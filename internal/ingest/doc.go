// Package ingest reads the game's telemetry export into telemetry records.
//
// The export is a CSV file with one row per metric:
//
//	id,created_at,player,app_version,context,metrics_id,metrics_key,metrics_value,artefact,checksum
//
// Rows sharing an id form one activity and become one telemetry.Record. The
// first row of an activity decides its kind from the context column; later
// rows only add metrics. Structural problems (wrong column count, unknown
// context or level, unparsable numbers) are fatal and reported as
// *telemetry.InputError naming the line. Rows with an unparsable date are
// skipped and counted.
package ingest
