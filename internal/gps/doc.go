package gps

// Package gps provides a minimal reader for USB serial GNSS receivers
// and gpsd, publishing snapshots in SI units:
// - Parse RMC for lat/lon/speed/course and the UTC clock
// - Parse GGA for altitude, geoid separation and fix quality
// - Provide a snapshot for the broadcast pipeline, which keys the
//   radio cipher on the GNSS second
