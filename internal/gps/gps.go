// Package gps converts between wall-clock time and the GPS epoch used by
// the DeviceTimeAns MAC command. GPS time is not adjusted for leap seconds,
// so the conversion applies the leap-second table.
package gps

import (
	"time"
)

var gpsEpochTime = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

var leapSecondsTable = []struct {
	Time     time.Time
	Duration time.Duration
}{
	{Time: time.Date(1981, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1982, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1983, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1985, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1987, time.December, 31, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1989, time.December, 31, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1990, time.December, 31, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1992, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1993, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1994, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1995, time.December, 31, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1997, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(1998, time.December, 31, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(2005, time.December, 31, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(2008, time.December, 31, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(2012, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(2015, time.June, 30, 23, 59, 59, 0, time.UTC), Duration: time.Second},
	{Time: time.Date(2016, time.December, 31, 23, 59, 59, 0, time.UTC), Duration: time.Second},
}

// TimeFromGPSEpoch returns the wall-clock time for a duration since the GPS
// epoch, corrected for leap seconds.
func TimeFromGPSEpoch(sinceEpoch time.Duration) time.Time {
	t := gpsEpochTime.Add(sinceEpoch)
	for _, ls := range leapSecondsTable {
		if ls.Time.Before(t) {
			t = t.Add(-ls.Duration)
		}
	}
	return t
}

// DurationSinceGPSEpoch returns the duration since the GPS epoch for a
// wall-clock time, corrected for leap seconds.
func DurationSinceGPSEpoch(t time.Time) time.Duration {
	var offset time.Duration
	for _, ls := range leapSecondsTable {
		if ls.Time.Before(t) {
			offset += ls.Duration
		}
	}
	return t.Sub(gpsEpochTime) + offset
}
