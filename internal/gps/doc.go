// Package gps turns a stream of NMEA lines into waypoints.
//
// The pipeline is line source -> nmea.Decoder -> Framer -> Assembler:
//   - A LineSource yields raw lines (serial port, gpsd, replay log, simulator).
//   - The Framer groups the sentences of one fix cycle into a Package,
//     opening on RMC and closing per its Termination policy.
//   - The Assembler merges the per-sentence values into one Waypoint.
//
// Acquire blocks until the receiver reports a valid fix; Service runs the
// pipeline continuously and hands each waypoint to a Sink.
package gps
