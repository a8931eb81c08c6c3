// Package match runs the competitive match lifecycle.
//
// A match moves waiting -> countdown -> playing -> finished. The countdown
// is owned by the server and broadcast at one-second ticks; clients only
// render what they receive. Scores arrive from the device ingest pipeline
// and rankings order by score, ties going to whoever reached the score
// first.
package match
