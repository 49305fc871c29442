// Package export holds the waypoint sinks that persist or publish a
// recording: CSV files, a SQLite store and an MQTT publisher, plus the
// offline local-time column rewrite for CSV recordings.
package export
